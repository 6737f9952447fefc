package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/lexlink/internal/pipeline"
	"github.com/OFFIS-RIT/lexlink/pkg/common"

	"github.com/go-playground/validator"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// LinkageMsg asks a worker to run one operation for one country.
type LinkageMsg struct {
	Operation     pipeline.Operation `json:"operation" validate:"required,oneof=run resolve reconcile"`
	Country       common.Country     `json:"country" validate:"required,len=2,alpha"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	RequestedAt   time.Time          `json:"requested_at"`
}

var validate = validator.New()

func NewLinkageMsg(op pipeline.Operation, c common.Country) (LinkageMsg, error) {
	id, err := gonanoid.New()
	if err != nil {
		return LinkageMsg{}, err
	}
	return LinkageMsg{
		Operation:     op,
		Country:       c,
		CorrelationID: id,
		RequestedAt:   time.Now().UTC(),
	}, nil
}

// ParseLinkageMsg decodes and validates a message body. Country codes are
// upper-cased and a missing operation means a full run.
func ParseLinkageMsg(body []byte) (LinkageMsg, error) {
	var msg LinkageMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return LinkageMsg{}, fmt.Errorf("decode linkage message: %w", err)
	}
	op, err := pipeline.ParseOperation(string(msg.Operation))
	if err != nil {
		return LinkageMsg{}, err
	}
	msg.Operation = op
	msg.Country = common.Country(strings.ToUpper(strings.TrimSpace(string(msg.Country))))
	if err := validate.Struct(msg); err != nil {
		return LinkageMsg{}, fmt.Errorf("invalid linkage message: %w", err)
	}
	return msg, nil
}

// Enqueue publishes msg on queueName.
func Enqueue(ch Channel, queueName string, msg LinkageMsg) error {
	if err := validate.Struct(msg); err != nil {
		return fmt.Errorf("invalid linkage message: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return PublishFIFO(ch, queueName, data)
}
