package service

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// PresenterRegistry issues presenter display names together with a capability
// token that privileged live operations must present.
type PresenterRegistry struct {
	mu     sync.RWMutex
	tokens map[string]string
	names  map[string]bool
}

// NewPresenterRegistry 创建主持人注册表
func NewPresenterRegistry() *PresenterRegistry {
	return &PresenterRegistry{
		tokens: make(map[string]string),
		names:  make(map[string]bool),
	}
}

// Issue generates a fresh presenter name and its capability token.
func (r *PresenterRegistry) Issue() (username string, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < 10; i++ {
		candidate := fmt.Sprintf("teacher_%d", rand.Intn(1000))
		if !r.names[candidate] {
			username = candidate
			break
		}
	}
	if username == "" {
		// 三位数名字用尽时退回到uuid后缀
		username = "teacher_" + uuid.NewString()[:8]
	}

	token = uuid.NewString()
	r.names[username] = true
	r.tokens[token] = username
	return username, token
}

// Resolve returns the presenter name bound to token.
func (r *PresenterRegistry) Resolve(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.tokens[token]
	return name, ok
}
