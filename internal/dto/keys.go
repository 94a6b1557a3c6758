package dto

import "time"

type ProvisionKeysRequest struct {
	PublicKey           string `json:"publicKey"`
	EncryptedPrivateKey string `json:"encryptedPrivateKey"`
}

type KeyRecordResponse struct {
	UserID              string    `json:"userId"`
	PublicKey           string    `json:"publicKey"`
	EncryptedPrivateKey string    `json:"encryptedPrivateKey"`
	KeyVersion          int       `json:"keyVersion"`
	CreatedAt           time.Time `json:"createdAt"`
}

type PublicKeyResponse struct {
	UserID    string `json:"userId"`
	PublicKey string `json:"publicKey"`
}
