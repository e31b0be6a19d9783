package model

import "time"

type PushSubscription struct {
	ID         int64     `json:"id" db:"id"`
	MemberID   int64     `json:"member_id" db:"member_id"`
	Endpoint   string    `json:"endpoint" db:"endpoint"`
	P256dhKey  string    `json:"p256dh_key" db:"p256dh_key"`
	AuthKey    string    `json:"auth_key" db:"auth_key"`
	DeviceName string    `json:"device_name" db:"device_name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
