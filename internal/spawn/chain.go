// Package spawn guards task invocation: depth limits and cycle detection on
// an immutable call chain, template resolution, and dispatch to the executor
// or the loop controller.
package spawn

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// chainLink is one (template, input-hash) pair on the call chain.
type chainLink struct {
	name string
	hash string
}

// CallChain records the invocations on the current evaluation branch. Chains
// are immutable: Extend returns a new chain, so concurrent branches sharing a
// prefix never observe each other's frames.
type CallChain struct {
	links []chainLink
}

// NewCallChain returns the empty root chain.
func NewCallChain() *CallChain {
	return &CallChain{}
}

// Depth returns the number of frames on the chain.
func (c *CallChain) Depth() int {
	if c == nil {
		return 0
	}
	return len(c.links)
}

// Extend returns a new chain with one frame appended. The receiver is left
// untouched.
func (c *CallChain) Extend(name string, inputs map[string]any) *CallChain {
	links := make([]chainLink, 0, c.Depth()+1)
	if c != nil {
		links = append(links, c.links...)
	}
	return &CallChain{links: append(links, chainLink{name: name, hash: HashInputs(inputs)})}
}

// Contains reports whether the exact (name, inputs) pair is already on the
// chain. Same template with different inputs is legitimate recursion and does
// not match.
func (c *CallChain) Contains(name string, inputs map[string]any) bool {
	if c == nil {
		return false
	}
	hash := HashInputs(inputs)
	for _, link := range c.links {
		if link.name == name && link.hash == hash {
			return true
		}
	}
	return false
}

// Names returns the template names on the chain, root first.
func (c *CallChain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.links))
	for i, link := range c.links {
		names[i] = link.name
	}
	return names
}

// HashInputs produces a stable digest of an input map. encoding/json sorts
// map keys, so equal maps always hash equal.
func HashInputs(inputs map[string]any) string {
	if len(inputs) == 0 {
		return ""
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		// Unmarshalable inputs (channels, funcs) cannot collide with any
		// JSON digest; fall back to a sentinel.
		return "unhashable"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
