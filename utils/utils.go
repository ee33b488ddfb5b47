package utils

import (
	"LocalTranslator/config"
	"LocalTranslator/discord"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
)

func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

func AsJson(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		discord.Errorf(err.Error())
	}
	return string(b)
}

// ChecksumString fingerprints a document so jobs can be tied back to the
// exact input they translated.
func ChecksumString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

func FormatSecondsToTime(seconds float64) string {
	// HH:MM
	minutes := int(seconds / 60)
	seconds = seconds - float64(minutes*60)
	return fmt.Sprintf("%02d:%02d", minutes, int(seconds))
}

func InputJoin(args ...string) string {
	return filepath.Join(config.TheConfig.Input, filepath.Join(args...))
}

func OutputJoin(args ...string) string {
	return filepath.Join(config.TheConfig.Output, filepath.Join(args...))
}
