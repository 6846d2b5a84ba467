// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-gorp/gorp/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/audittools"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"

	"github.com/sapcc/parkhaus/internal/api"
	"github.com/sapcc/parkhaus/internal/auth"
	"github.com/sapcc/parkhaus/internal/collector"
	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
	"github.com/sapcc/parkhaus/internal/pprofapi"
)

func main() {
	bininfo.HandleVersionArgument()
	logg.ShowDebug = osext.GetenvBool("PARKHAUS_DEBUG")

	// first argument is task name
	if len(os.Args) < 2 {
		printUsageAndExit()
	}
	taskName, remainingArgs := os.Args[1], os.Args[2:]
	bininfo.SetTaskName(taskName)

	// connect to database
	dbConn := must.Return(db.Init())
	dbm := db.InitORM(dbConn)

	ctx := httpext.ContextWithSIGINT(context.Background(), 10*time.Second)

	switch taskName {
	case "serve":
		taskServe(ctx, dbm, remainingArgs)
	case "collect":
		taskCollect(ctx, dbm, remainingArgs)
	case "test-issue-token":
		taskTestIssueToken(dbm, remainingArgs)
	case "test-hash-password":
		taskTestHashPassword(remainingArgs)
	default:
		printUsageAndExit()
	}
}

var usageMessage = strings.TrimSpace(`
Usage:
	%[1]s (serve|collect)
	%[1]s test-issue-token <operator-id> [<password>]
	%[1]s test-hash-password <password>
`) + "\n"

func printUsageAndExit() {
	fmt.Fprintf(os.Stderr, usageMessage, os.Args[0])
	os.Exit(1)
}

// loadNetwork reads the service configuration file, if any. Without a config
// file, the built-in membership plans and an empty default pricing apply.
func loadNetwork() *core.Network {
	var configBytes []byte
	if path := os.Getenv("PARKHAUS_CONFIG_PATH"); path != "" {
		configBytes = must.Return(os.ReadFile(path))
	}
	network, errs := core.NewNetworkFromYAML(configBytes)
	for _, err := range errs {
		logg.Error(err.Error())
	}
	if !errs.IsEmpty() {
		logg.Fatal("service configuration is invalid (see errors above)")
	}
	return network
}

////////////////////////////////////////////////////////////////////////////////
// task: serve

func taskServe(ctx context.Context, dbm *gorp.DbMap, args []string) {
	if len(args) != 0 {
		printUsageAndExit()
	}

	network := loadNetwork()
	tokenValidator := auth.NewChecker(dbm, auth.NewTokenCodecFromEnv())

	// the audit trail is enabled iff a RabbitMQ queue is configured
	auditor := audittools.Auditor(audittools.NewNullAuditor())
	if os.Getenv("PARKHAUS_AUDIT_RABBITMQ_QUEUE_NAME") != "" {
		auditor = must.Return(audittools.NewAuditor(ctx, audittools.AuditorOpts{
			EnvPrefix: "PARKHAUS_AUDIT_RABBITMQ",
			Observer: audittools.Observer{
				TypeURI: "service/parking",
				Name:    bininfo.Component(),
				ID:      audittools.GenerateUUID(),
			},
		}))
	}

	apis := []httpapi.API{
		api.NewV1API(dbm, network, tokenValidator, auditor, time.Now),
		httpapi.HealthCheckAPI{
			SkipRequestLog: true,
			Check: func() error {
				return dbm.Db.Ping()
			},
		},
	}
	if osext.GetenvBool("PARKHAUS_ENABLE_PPROF") {
		apis = append(apis, pprofapi.API{IsAuthorized: pprofapi.IsRequestFromLocalhost})
	}
	handler := httpapi.Compose(apis...)

	// add CORS support for the operator dashboard
	if allowedOriginStr := os.Getenv("PARKHAUS_API_CORS_ALLOWED_ORIGINS"); allowedOriginStr != "" {
		allowedOrigins := strings.Split(strings.ReplaceAll(allowedOriginStr, " ", ""), "||")
		handler = cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"HEAD", "GET", "POST", "PUT", "DELETE"},
			AllowedHeaders: []string{"Content-Type", "User-Agent", "Authorization"},
		}).Handler(handler)
	}

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/metrics", promhttp.Handler())

	apiListenAddr := osext.GetenvOrDefault("PARKHAUS_API_LISTEN_ADDRESS", ":5000")
	must.Succeed(httpext.ListenAndServeContext(ctx, apiListenAddr, mux))
}

////////////////////////////////////////////////////////////////////////////////
// task: collect

func taskCollect(ctx context.Context, dbm *gorp.DbMap, args []string) {
	if len(args) != 0 {
		printUsageAndExit()
	}

	c := collector.NewCollector(dbm)
	go c.MarkSilentMachinesJob(nil).Run(ctx)
	go c.CheckConsistencyJob(nil).Run(ctx)
	go c.ExpiringMembershipsJob(nil).Run(ctx)

	// use main thread to emit Prometheus metrics
	prometheus.MustRegister(&collector.AggregateMetricsCollector{
		DB:          dbm,
		MeasureTime: time.Now,
		LogError:    logg.Error,
	})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	metricsListenAddr := osext.GetenvOrDefault("PARKHAUS_COLLECT_METRICS_LISTEN_ADDRESS", ":8080")
	must.Succeed(httpext.ListenAndServeContext(ctx, metricsListenAddr, mux))
}

////////////////////////////////////////////////////////////////////////////////
// task: test-issue-token

// taskTestIssueToken mints a session-token pair for the given user, same as a
// login through the identity provider would. This is a development helper for
// poking at an API instance with curl. With a password argument, the stored
// credentials are verified first, including the failed-attempt lockout.
func taskTestIssueToken(dbm *gorp.DbMap, args []string) {
	if len(args) < 1 || len(args) > 2 {
		printUsageAndExit()
	}
	operatorID := args[0]
	checker := auth.NewChecker(dbm, auth.NewTokenCodecFromEnv())

	var user db.User
	if len(args) == 2 {
		user = must.Return(checker.VerifyCredentials(operatorID, args[1]))
	} else {
		err := dbm.SelectOne(&user, `SELECT * FROM users WHERE operator_id = $1 AND status = 'active'`, operatorID)
		if errors.Is(err, sql.ErrNoRows) {
			logg.Fatal("no active user with operator ID %q", operatorID)
		}
		must.Succeed(err)
	}

	pair := must.Return(checker.StartSession(user))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must.Succeed(enc.Encode(map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresAt":    pair.ExpiresAt.Format(time.RFC3339),
	}))
}

////////////////////////////////////////////////////////////////////////////////
// task: test-hash-password

// taskTestHashPassword prints the bcrypt hash of the given password, for
// filling the password_hash column when provisioning users by hand.
func taskTestHashPassword(args []string) {
	if len(args) != 1 {
		printUsageAndExit()
	}
	fmt.Println(must.Return(auth.HashPassword(args[0], auth.BcryptCost())))
}
