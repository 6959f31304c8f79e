package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/pflag"

	"github.com/eldtechnologies/donut/internal/crypto"
)

func main() {
	privKeyB64 := pflag.StringP("key", "k", os.Getenv("DONUT_OPERATOR_KEY"), "Base64-encoded Ed25519 private key or seed")
	method := pflag.StringP("method", "X", "POST", "HTTP method")
	path := pflag.StringP("path", "p", "", "Request path, e.g. /rounds/start")
	bodyFile := pflag.StringP("body", "b", "", "File containing request body (or use stdin, - for none)")
	pflag.Parse()

	if *privKeyB64 == "" || *path == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -k <private-key-base64> -p <path> [-X <method>] [-b <file>]")
		fmt.Fprintln(os.Stderr, "  Reads body from stdin if -b not specified")
		os.Exit(1)
	}

	privKey, err := crypto.ParsePrivateKey(*privKeyB64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid private key: %v\n", err)
		os.Exit(1)
	}

	// Read body
	var body []byte
	switch *bodyFile {
	case "-":
	case "":
		body, err = io.ReadAll(os.Stdin)
	default:
		body, err = os.ReadFile(*bodyFile)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		os.Exit(1)
	}

	nonce := ulid.Make().String()
	timestamp := time.Now().UnixMilli()

	signedData := crypto.SignaturePayload(strings.ToUpper(*method), *path, crypto.BodyHash(body), nonce, timestamp)

	// Output headers
	fmt.Printf("X-Donut-Nonce: %s\n", nonce)
	fmt.Printf("X-Donut-Timestamp: %d\n", timestamp)
	fmt.Printf("X-Donut-Signature: %s\n", crypto.Sign(privKey, signedData))
}
