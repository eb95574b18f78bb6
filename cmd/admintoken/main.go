package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/punchamoorthee/custodia/internal/auth"
)

func main() {
	subject := flag.String("sub", "admin", "Token subject, logged with every admin action")
	role := flag.String("role", auth.RoleAdmin, "Role claim")
	ttl := flag.Duration("ttl", 8*time.Hour, "Token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	a, err := auth.NewAdminAuthorizer(os.Getenv("ADMIN_JWT_SECRET"))
	if err != nil {
		log.Fatal(err)
	}

	token, err := a.Issue(*subject, *role, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
