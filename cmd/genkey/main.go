package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	envFormat := pflag.Bool("env", false, "Print as environment variable assignments")
	pflag.Parse()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintln(os.Stderr, "key generation failed:", err)
		os.Exit(1)
	}

	pubB64 := base64.StdEncoding.EncodeToString(pub)
	seedB64 := base64.StdEncoding.EncodeToString(priv.Seed())

	if *envFormat {
		fmt.Printf("OPERATOR_PUBLIC_KEY=%s\n", pubB64)
		fmt.Printf("DONUT_OPERATOR_KEY=%s\n", seedB64)
		return
	}
	fmt.Printf("Public key (base64):  %s\n", pubB64)
	fmt.Printf("Private seed (base64): %s\n", seedB64)
}
