package model

import (
	"fmt"
	"time"
)

// 消息类型
type MessageType int

const (
	MessageTypePurchaseCreated   MessageType = iota // 购买交易已创建
	MessageTypePurchaseCompleted                    // 购买已完成
	MessageTypePurchaseFailed                       // 购买失败
)

func (t MessageType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *MessageType) UnmarshalText(text []byte) error {
	for _, candidate := range []MessageType{MessageTypePurchaseCreated, MessageTypePurchaseCompleted, MessageTypePurchaseFailed} {
		if candidate.String() == string(text) {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("未知的消息类型: %s", text)
}

func (t MessageType) String() string {
	switch t {
	case MessageTypePurchaseCreated:
		return "purchase_created"
	case MessageTypePurchaseCompleted:
		return "purchase_completed"
	case MessageTypePurchaseFailed:
		return "purchase_failed"
	}
	return "unknown"
}

// 队列消息
type QueueMessage struct {
	Type          MessageType            `json:"type"`
	WalletAddress string                 `json:"walletAddress"`       // 买家钱包
	Record        *PurchaseRecord        `json:"record,omitempty"`    // 购买记录
	Metadata      *PurchaseMetadata      `json:"metadata,omitempty"`  // 交易预览
	Error         string                 `json:"error,omitempty"`     // 失败原因
	Timestamp     time.Time              `json:"timestamp"`           // 时间戳
	ExtraData     map[string]interface{} `json:"extraData,omitempty"` // 额外数据
}

// 创建交易消息
func NewCreatedMessage(wallet string, metadata PurchaseMetadata) *QueueMessage {
	return &QueueMessage{
		Type:          MessageTypePurchaseCreated,
		WalletAddress: wallet,
		Metadata:      &metadata,
		Timestamp:     time.Now(),
		ExtraData:     make(map[string]interface{}),
	}
}

// 完成购买消息
func NewCompletedMessage(record *PurchaseRecord) *QueueMessage {
	return &QueueMessage{
		Type:          MessageTypePurchaseCompleted,
		WalletAddress: record.UserPublicKey,
		Record:        record,
		Timestamp:     time.Now(),
		ExtraData:     make(map[string]interface{}),
	}
}

// 购买失败消息
func NewFailedMessage(wallet string, err error) *QueueMessage {
	return &QueueMessage{
		Type:          MessageTypePurchaseFailed,
		WalletAddress: wallet,
		Error:         err.Error(),
		Timestamp:     time.Now(),
		ExtraData:     make(map[string]interface{}),
	}
}
