package models

import (
	"time"
)

type Operation struct {
	UserOpHash      string     `json:"userOpHash" gorm:"primaryKey;type:text"`
	ChainID         string     `json:"chainId" gorm:"type:text;index"`
	Sender          string     `json:"sender" gorm:"type:text;index"`
	Recipient       string     `json:"recipient" gorm:"type:text"`
	Currency        string     `json:"currency" gorm:"type:text"`
	Amount          string     `json:"amount" gorm:"type:text"`
	MinorUnits      string     `json:"minorUnits" gorm:"type:text"`
	Sponsored       bool       `json:"sponsored" gorm:"type:boolean;not null;default:false"`
	Status          string     `json:"status" gorm:"type:text;not null;index"`
	TransactionHash string     `json:"transactionHash" gorm:"type:text"`
	Reason          string     `json:"reason" gorm:"type:text"`
	SubmittedAt     time.Time  `json:"submittedAt" gorm:"type:timestamp with time zone;not null"`
	ResolvedAt      *time.Time `json:"resolvedAt" gorm:"type:timestamp with time zone"`
	MDate           time.Time  `json:"mdate" gorm:"autoUpdateTime"`
}

type Wallet struct {
	IdentityKey  string    `json:"identityKey" gorm:"primaryKey;type:text"`
	CredentialID string    `json:"credentialId" gorm:"type:text;index"`
	RPID         string    `json:"rpId" gorm:"column:rp_id;type:text"`
	PublicKey    []byte    `json:"publicKey" gorm:"type:bytea"`
	Address      string    `json:"address" gorm:"type:text;index"`
	ChainID      string    `json:"chainId" gorm:"type:text"`
	CDate        time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
