package notification

import (
	"fmt"
	"sync"
)

var (
	instance *Service
	once     sync.Once
	mu       sync.RWMutex
)

// Initialize sets up the global notification service instance
func Initialize(config *ServiceConfig) *Service {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if instance == nil {
			instance = NewService(config)
		}
	})
	return GetService()
}

// GetService returns the global notification service instance
func GetService() *Service {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// SetServiceForTesting installs a service instance for tests. It fails when
// a service is already installed.
func SetServiceForTesting(service *Service) error {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return fmt.Errorf("notification service already initialized")
	}

	instance = service
	return nil
}

// ResetForTesting clears the global instance.
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// MustGetService returns the service instance or panics if not initialized
func MustGetService() *Service {
	service := GetService()
	if service == nil {
		panic("notification service not initialized")
	}
	return service
}

// IsInitialized checks if the notification service has been initialized
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return instance != nil
}
