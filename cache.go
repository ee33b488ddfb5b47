package main

import (
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type Cache[T any] struct {
	Data          T
	Marshalled    string
	LastFetched   time.Time
	TTL           time.Duration
	FetchMethod   func() (T, error)
	EnableMarshal bool
	mutex         sync.Mutex
}

func CreateCache[T any](ttl time.Duration, enableMarshal bool, fetchMethod func() (T, error)) *Cache[T] {
	return &Cache[T]{
		TTL:           ttl,
		FetchMethod:   fetchMethod,
		EnableMarshal: enableMarshal,
	}
}

func (c *Cache[T]) Get() (T, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.LastFetched.Add(c.TTL).Before(time.Now()) {
		data, err := c.FetchMethod()
		if err != nil {
			return c.Data, err
		}
		c.Data = data
		c.LastFetched = time.Now()
		if c.EnableMarshal {
			s, err := json.Marshal(c.Data)
			if err != nil {
				return c.Data, err
			}
			c.Marshalled = string(s)
		}
	}
	return c.Data, nil
}

func (c *Cache[T]) GetMarshalled() string {
	_, err := c.Get()
	if err != nil {
		log.Errorf("Error fetching data: %v", err)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.Marshalled
}

// Invalidate forces the next Get to refetch. Called after writes that change
// what the fetch would return.
func (c *Cache[T]) Invalidate() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.LastFetched = time.Time{}
}

type MapCache[T any] struct {
	mutex       sync.Mutex
	Data        map[string]T
	FetchMethod func(key string) (T, error)
	HasExpired  func(value T) bool
}

func CreateMapCache[T any](fetchMethod func(key string) (T, error),
	hasExpired func(value T) bool) *MapCache[T] {
	return &MapCache[T]{
		FetchMethod: fetchMethod,
		HasExpired:  hasExpired,
		Data:        make(map[string]T),
	}
}

func (c *MapCache[T]) Get(key string) (T, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.Data[key]
	if !ok || c.HasExpired(c.Data[key]) {
		log.Debugf("Cache expired %s, fetching new data", key)
		data, err := c.FetchMethod(key)
		if err != nil {
			return c.Data[key], err
		}
		c.Data[key] = data
	}
	return c.Data[key], nil
}

func (c *MapCache[T]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.Data, key)
}
