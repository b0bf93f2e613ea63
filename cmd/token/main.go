// Command token mints a bearer token for local development against the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"kkn/internal/auth"
	"kkn/internal/config"
)

func main() {
	sub := flag.String("sub", "", "user id (required)")
	email := flag.String("email", "", "email claim")
	role := flag.String("role", auth.RoleStudent, "role claim: student, supervisor or admin")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if *sub == "" {
		flag.Usage()
		os.Exit(2)
	}
	switch *role {
	case auth.RoleStudent, auth.RoleSupervisor, auth.RoleAdmin:
	default:
		logrus.Fatalf("unknown role %q", *role)
	}

	cfg := config.Load()
	if cfg.Production() {
		logrus.Fatal("refusing to mint tokens with production settings")
	}
	token, exp, err := auth.Issue(*sub, *email, *role, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		logrus.WithError(err).Fatal("sign token")
	}
	fmt.Println(token)
	logrus.WithField("expires", exp.Format(time.RFC3339)).Info("token issued")
}
