package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator produces opaque, unique entity identifiers
type Generator interface {
	NewID() string
}

// Snowflake generates identifiers from a snowflake node
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake creates a generator for the given node number (0-1023)
func NewSnowflake(nodeID int64) (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &Snowflake{node: node}, nil
}

// NewID returns the next identifier in base-10 form
func (s *Snowflake) NewID() string {
	return s.node.Generate().String()
}
