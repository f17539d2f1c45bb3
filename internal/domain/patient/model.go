package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a person receiving medication reminders. DeviceTokens holds the
// FCM registration tokens of every device the patient has signed in on.
type Patient struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	DeviceTokens []string   `json:"device_tokens,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
