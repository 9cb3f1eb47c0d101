package save

import (
	"encoding/json"
	"fmt"
	"sync"
)

// DecodeFunc rebuilds a concrete state value from one entry's JSON blob.
type DecodeFunc func(data []byte) (any, error)

// Codec maps type tags to decoders. Each saveable kind registers its tag and
// decoder at startup; load never resolves types by reflection.
type Codec struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

func NewCodec() *Codec {
	return &Codec{decoders: make(map[string]DecodeFunc)}
}

func (c *Codec) Register(tag string, fn DecodeFunc) error {
	if tag == "" || fn == nil {
		return fmt.Errorf("codec: empty tag or nil decoder")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.decoders[tag]; ok {
		return fmt.Errorf("codec: tag %q already registered", tag)
	}
	c.decoders[tag] = fn
	return nil
}

func (c *Codec) Decode(tag string, data []byte) (any, error) {
	c.mu.RLock()
	fn, ok := c.decoders[tag]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("codec: no decoder for tag %q", tag)
	}
	return fn(data)
}

// JSONDecoder returns a DecodeFunc that unmarshals into T.
func JSONDecoder[T any]() DecodeFunc {
	return func(data []byte) (any, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
