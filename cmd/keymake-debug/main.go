// keymake-debug generates an Ed448 key pair and writes the raw key
// bytes to the current directory. Debug tool only; real sessions manage
// their key file themselves.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/cloudflare/circl/sign/ed448"
)

func main() {
	pub, priv, err := ed448.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile("./ed448_key_secret", priv.Seed(), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "write secret key: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("./ed448_key_public", pub, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write public key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("wrote ed448_key_secret and ed448_key_public")
	fmt.Printf("public key: %s\n", base64.RawURLEncoding.EncodeToString(pub))
}
