package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	sec "github.com/dropDatabas3/claimbridge/internal/security/secretbox"
)

// Cifra un secreto para pegarlo en config.yaml (o en env) con prefijo ENC:.
// Uso: SECRETBOX_MASTER_KEY=... ./enc "mi-client-secret"
func main() {
	_ = godotenv.Load(".env")

	if len(os.Args) < 2 {
		log.Fatal("uso: enc <secreto>")
	}
	enc, err := sec.Encrypt(os.Args[1])
	if err != nil {
		log.Fatalf("encrypt: %v", err)
	}
	fmt.Println(enc)
}
