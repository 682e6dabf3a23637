// pmcrypt seals and opens values with the switch's AES key, e.g. to inspect
// a merchant connector account's stored credentials.
//
//	go run ./cmd/pmcrypt encrypt '<plaintext>'
//	go run ./cmd/pmcrypt decrypt '<ciphertext>'
package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"payswitch/internal/domain/credential"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Println("usage: pmcrypt encrypt|decrypt <value>")
		os.Exit(1)
	}
	_ = godotenv.Load()

	keyB64 := os.Getenv("AES_256_KEY_BASE64")
	if keyB64 == "" {
		fmt.Println("AES_256_KEY_BASE64 is not set")
		os.Exit(1)
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil || len(key) != 32 {
		fmt.Println("AES_256_KEY_BASE64 must be valid base64 of 32 bytes")
		os.Exit(1)
	}

	var out string
	switch os.Args[1] {
	case "encrypt":
		out, err = credential.Encrypt(os.Args[2], key)
	case "decrypt":
		out, err = credential.Decrypt(os.Args[2], key)
	default:
		fmt.Printf("unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println(out)
}
