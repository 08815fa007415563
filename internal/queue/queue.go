package queue

import (
	"sync"

	"token_purchase/internal/common"
	"token_purchase/internal/model"

	"github.com/sirupsen/logrus"
)

// 消息队列管理器
type MessageQueue struct {
	name     string                   // 队列名称
	messages chan *model.QueueMessage // 消息通道
	handlers []MessageHandler         // 消息处理器
	mutex    sync.RWMutex             // 读写锁
	started  bool
	stopped  bool
	done     chan struct{}
}

// 消息处理器接口
type MessageHandler interface {
	HandleMessage(msg *model.QueueMessage)
}

// HandlerFunc 函数适配为 MessageHandler
type HandlerFunc func(msg *model.QueueMessage)

func (f HandlerFunc) HandleMessage(msg *model.QueueMessage) {
	f(msg)
}

// 创建新消息队列
func NewMessageQueue(name string, bufferSize int) *MessageQueue {
	return &MessageQueue{
		name:     name,
		messages: make(chan *model.QueueMessage, bufferSize),
		handlers: make([]MessageHandler, 0),
		done:     make(chan struct{}),
	}
}

func (q *MessageQueue) Name() string {
	return q.name
}

// 注册消息处理器
func (q *MessageQueue) RegisterHandler(handler MessageHandler) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.handlers = append(q.handlers, handler)
}

// SendMessage 发送消息到队列，队列已满或已停止时丢弃并返回 false
func (q *MessageQueue) SendMessage(msg *model.QueueMessage) bool {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	logger := common.Log.WithFields(logrus.Fields{
		"queue":  q.name,
		"type":   msg.Type.String(),
		"wallet": msg.WalletAddress,
	})
	if q.stopped {
		logger.Warn("队列已停止，消息被丢弃")
		return false
	}

	select {
	case q.messages <- msg:
		logger.Debug("消息已发送到队列")
		return true
	default:
		logger.Warn("队列已满，消息被丢弃")
		return false
	}
}

// 启动消息处理，同一条消息按注册顺序依次交给各处理器
func (q *MessageQueue) Start() {
	q.mutex.Lock()
	if q.started {
		q.mutex.Unlock()
		return
	}
	q.started = true
	q.mutex.Unlock()

	go func() {
		defer close(q.done)
		for msg := range q.messages {
			q.mutex.RLock()
			handlers := q.handlers
			q.mutex.RUnlock()

			for _, handler := range handlers {
				q.dispatch(handler, msg)
			}
		}
	}()

	common.Log.WithField("queue", q.name).Info("队列已启动")
}

func (q *MessageQueue) dispatch(handler MessageHandler, msg *model.QueueMessage) {
	defer func() {
		if r := recover(); r != nil {
			common.Log.WithFields(logrus.Fields{
				"queue": q.name,
				"panic": r,
			}).Error("消息处理器异常")
		}
	}()
	handler.HandleMessage(msg)
}

// Stop 停止接收消息，等待已入队的消息处理完毕。可重复调用
func (q *MessageQueue) Stop() {
	q.mutex.Lock()
	if q.stopped {
		q.mutex.Unlock()
		return
	}
	q.stopped = true
	started := q.started
	close(q.messages)
	q.mutex.Unlock()

	if started {
		<-q.done
	}
	common.Log.WithField("queue", q.name).Info("队列已停止")
}
