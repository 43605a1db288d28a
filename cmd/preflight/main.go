// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"conncheck/internal/plan"
)

func main() {
	configPath := pflag.String("config", "", "path to the check plan (JSON)")
	postman := pflag.String("postman", "", "Postman collection override")
	envFile := pflag.String("env", "", "Postman environment override")
	pflag.Parse()

	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	if *configPath == "" {
		fail("--config is required")
	}

	p, err := plan.Load(*configPath)
	if err != nil {
		fail(fmt.Sprintf("check plan unreadable: %v", err))
	}

	sections := 0

	if len(p.DNS.Hostnames) > 0 {
		sections++
		ok(fmt.Sprintf("dns: %d hostname(s)", len(p.DNS.Hostnames)))
	}

	collection := *postman
	if collection == "" {
		collection = p.API.PostmanCollection
	}
	env := *envFile
	if env == "" {
		env = p.API.PostmanEnv
	}

	if collection != "" {
		sections++
		if _, err := os.Stat(collection); err != nil {
			fail("postman collection unreadable: " + collection)
		}
		ok("postman collection: " + collection)
		if env != "" {
			if _, err := os.Stat(env); err != nil {
				warn("postman environment missing; requests will run unsubstituted")
			} else {
				ok("postman environment: " + env)
			}
		}
	} else if !p.API.Empty() {
		sections++
		if p.API.URL == "" {
			fail("api section has no url")
		}
		if !strings.Contains(p.API.URL, "://") {
			warn("api url has no scheme: " + p.API.URL)
		}
		ok("api: " + p.API.URL)
	}

	if !p.DB.Empty() {
		sections++
		if p.DB.Query == "" {
			fail("db section has no query")
		}
		driver := p.DB.Driver
		if driver == "" {
			driver = "mysql"
		}
		if p.DB.Password == "" && os.Getenv("CONNCHECK_DB_PASSWORD") == "" {
			warn("db password empty and CONNCHECK_DB_PASSWORD unset")
		}
		ok("db: " + driver + " check configured")
	}

	if sections == 0 {
		warn("plan has no sections; the report will be empty")
	}

	ok("preflight passed")
}
