package sms

import (
	"github.com/pitabwire/frame/data"
)

// Delivery attempt statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DeliveryAttempt records one attempt to hand a message to the gateway.
type DeliveryAttempt struct {
	data.BaseModel

	MessageID     string `gorm:"type:varchar(50);not null;index:idx_sms_da_message" json:"message_id"`
	Recipient     string `gorm:"type:varchar(64);index:idx_sms_da_recipient"         json:"recipient"`
	ResponseCode  int    `gorm:"default:0"                                           json:"response_code"`
	ResponseBody  string `gorm:"type:text"                                           json:"-"`
	AttemptNumber int    `gorm:"default:1"                                           json:"attempt_number"`
	Status        string `gorm:"type:varchar(20);not null"                           json:"status"`
	Error         string `gorm:"type:text"                                           json:"error,omitempty"`
	DurationMs    int64  `gorm:"default:0"                                           json:"duration_ms"`
}

func (DeliveryAttempt) TableName() string { return "sms_delivery_attempts" }

// DeadLetter holds messages that exhausted all delivery retries.
type DeadLetter struct {
	data.BaseModel

	MessageID string `gorm:"type:varchar(50);not null"                    json:"message_id"`
	Recipient string `gorm:"type:varchar(64);index:idx_sms_dl_recipient" json:"recipient"`
	Body      string `gorm:"type:text;not null"                           json:"body"`
	LastError string `gorm:"type:text"                                    json:"last_error"`
	Attempts  int    `gorm:"default:0"                                    json:"attempts"`
	Replayed  bool   `gorm:"default:false"                                json:"replayed"`
}

func (DeadLetter) TableName() string { return "sms_dead_letters" }
