package auth

import (
	"crypto/md5"
	"encoding/hex"
)

const passwordSalt = "command_deck_salt"

func hashPassword(password string) string {
	hash := md5.Sum([]byte(password + passwordSalt))
	return hex.EncodeToString(hash[:])
}

func verifyPassword(password, hashedPassword string) bool {
	return hashPassword(password) == hashedPassword
}
