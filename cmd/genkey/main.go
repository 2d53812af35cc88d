package main

import (
	"fmt"
	"log"

	"aiengine/internal/storage"
)

// genkey prints a fresh base64 AES-256 key suitable for
// OPTION_ENCRYPTION_KEY.
func main() {
	key, err := storage.GenerateKey(32)
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}
	fmt.Println(key)
}
