package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

// TempPrefix marks locally generated message ids. A message whose id carries
// this prefix has not been confirmed by the backend yet.
const TempPrefix = "tmp-"

// IDGenerator is the interface for generating unique IDs
type IDGenerator interface {
	// NextID generates a new unique ID
	NextID() (string, error)
}

// SonyflakeGenerator implements IDGenerator using sonyflake
type SonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewSonyflakeGenerator creates a new SonyflakeGenerator
func NewSonyflakeGenerator(machineID uint16) (*SonyflakeGenerator, error) {
	st := sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: func() (uint16, error) {
			return machineID, nil
		},
	}

	sf, err := sonyflake.New(st)
	if err != nil {
		return nil, fmt.Errorf("failed to create sonyflake: %w", err)
	}

	return &SonyflakeGenerator{sf: sf}, nil
}

// NextID generates a new unique ID
func (g *SonyflakeGenerator) NextID() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return fmt.Sprintf("%d", id), nil
}

// UUIDGenerator implements IDGenerator using UUID v4
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUIDGenerator
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NextID generates a new UUID
func (g *UUIDGenerator) NextID() (string, error) {
	return uuid.NewString(), nil
}

// Global default generator
var (
	defaultGenerator IDGenerator
	once             sync.Once
)

// SetDefaultGenerator sets the default ID generator
func SetDefaultGenerator(gen IDGenerator) {
	defaultGenerator = gen
}

// GetDefaultGenerator returns the default ID generator.
// If not set, creates a SonyflakeGenerator with machineID 1 and falls back
// to UUIDs when sonyflake cannot be initialized.
func GetDefaultGenerator() IDGenerator {
	once.Do(func() {
		if defaultGenerator == nil {
			gen, err := NewSonyflakeGenerator(1)
			if err != nil {
				defaultGenerator = NewUUIDGenerator()
				return
			}
			defaultGenerator = gen
		}
	})
	return defaultGenerator
}

// NextID generates a new ID using the default generator
func NextID() (string, error) {
	return GetDefaultGenerator().NextID()
}

// NextTempID generates a temporary message id. The id is unique per process
// and distinguishable from server ids by its prefix; it also serves as the
// client message id for backend-side send deduplication. Falls back to a
// UUID when the default generator is exhausted, so it never fails.
func NextTempID() string {
	id, err := NextID()
	if err != nil {
		id = uuid.NewString()
	}
	return TempPrefix + id
}
