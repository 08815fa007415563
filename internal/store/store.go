package store

import (
	"sort"
	"sync"

	"token_purchase/internal/model"
)

// PurchaseStore 内存中的购买记录，进程重启后清空
type PurchaseStore struct {
	mutex    sync.RWMutex
	records  []*model.PurchaseRecord
	byWallet map[string][]*model.PurchaseRecord
	bySig    map[string]*model.PurchaseRecord
}

func NewPurchaseStore() *PurchaseStore {
	return &PurchaseStore{
		byWallet: make(map[string][]*model.PurchaseRecord),
		bySig:    make(map[string]*model.PurchaseRecord),
	}
}

// Add 保存购买记录；同一交易签名重复提交时返回已有记录
func (s *PurchaseStore) Add(record *model.PurchaseRecord) (*model.PurchaseRecord, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if record.TransactionSignature != "" {
		if existing, ok := s.bySig[record.TransactionSignature]; ok {
			return existing, false
		}
		s.bySig[record.TransactionSignature] = record
	}
	s.records = append(s.records, record)
	s.byWallet[record.UserPublicKey] = append(s.byWallet[record.UserPublicKey], record)
	return record, true
}

// ListByWallet 按购买时间倒序返回钱包的购买记录
func (s *PurchaseStore) ListByWallet(wallet string) []*model.PurchaseRecord {
	s.mutex.RLock()
	out := make([]*model.PurchaseRecord, len(s.byWallet[wallet]))
	copy(out, s.byWallet[wallet])
	s.mutex.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PurchasedAt.After(out[j].PurchasedAt)
	})
	return out
}

func (s *PurchaseStore) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.records)
}
