// Package pdo protects files by wrapping them in Protected Document Objects.
//
// A PDO is a single-page PDF carrier holding the AES-256-GCM encrypted file
// as an attachment, an encrypted smart policy block, integrity fingerprints
// and, optionally, a certificate hidden in the blue channel of an embedded
// image. Keys are issued per operation by a remote key service and are never
// stored.
//
// Basic usage:
//
//	engine, err := pdo.New(pdo.Config{
//	    Product: pdo.DefaultProduct,
//	    Crypto:  pdo.DefaultCrypto,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	acct := pdo.Account{
//	    APIKey:          "your-api-key",
//	    GrantToken:      "your-grant-token",
//	    GrantExpiration: "2027-01-01",
//	    Alias:           "alice",
//	}
//
//	// Protect a file
//	results, err := engine.Protect(ctx, acct, pdo.ProtectRequest{
//	    Files:  []string{"report.txt"},
//	    Policy: pdo.NoPolicy,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Open the carrier again
//	res, err := engine.Access(ctx, acct, results[0].Carrier)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Decrypted to:", res.Path)
package pdo
