package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"loanledger/internal/config"
	"loanledger/internal/database"
	"loanledger/internal/handlers"
	"loanledger/internal/repositories"
	"loanledger/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "loanledger: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "loanledger",
		Short:        "Library loan ledger",
		Long:         `loanledger tracks book copies on loan, their due dates and the late fees they accrue.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCmd(), newMigrateCmd(), newOverdueCmd())
	return cmd
}

type app struct {
	cfg     *config.Config
	db      *gorm.DB
	catalog services.CatalogService
	members services.MemberService
	ledger  services.LoanLedger
}

func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL, database.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxOpenConns / 2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, err
	}

	memberRepo := repositories.NewMemberRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	copyRepo := repositories.NewCopyRepository(db)
	loanRepo := repositories.NewLoanRepository(db)

	catalog := services.NewCatalogService(db, bookRepo, copyRepo)
	members := services.NewMemberService(db, memberRepo)
	period := time.Duration(cfg.LoanPeriodDays) * 24 * time.Hour
	ledger := services.NewLoanLedger(db, copyRepo, loanRepo, catalog, members, period)

	return &app{cfg: cfg, db: db, catalog: catalog, members: members, ledger: ledger}, nil
}

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			if migrate {
				if err := database.Migrate(a.db); err != nil {
					return err
				}
			}

			router := gin.Default()
			handlers.RegisterRoutes(router, a.catalog, a.members, a.ledger, a.cfg.DailyRate)

			srv := &http.Server{
				Addr:         a.cfg.ServerAddr,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
			}

			go func() {
				<-cmd.Context().Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Printf("[ERROR] serve: shutdown: %v", err)
				}
			}()

			log.Printf("[INFO] Starting server on %s", a.cfg.ServerAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply schema migrations before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			if err := database.Migrate(a.db); err != nil {
				return err
			}
			log.Printf("[INFO] migrate: schema is up to date")
			return nil
		},
	}
}

func newOverdueCmd() *cobra.Command {
	var at string
	var rate string
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List overdue loans with their current late fee",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
			}
			dailyRate := a.cfg.DailyRate
			if rate != "" {
				if dailyRate, err = decimal.NewFromString(rate); err != nil {
					return fmt.Errorf("parse --rate: %w", err)
				}
			}

			// Collect first: Describe issues its own queries and must not run
			// while the overdue cursor holds a connection.
			loans, err := services.CollectOverdue(cmd.Context(), a.ledger, now)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LOAN\tTITLE\tMEMBER\tDUE\tDAYS\tFEE")
			for _, loan := range loans {
				d, err := a.ledger.Describe(cmd.Context(), loan, now, dailyRate)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					loan.ID, d.Book.Title, d.Member.Name, loan.DueAt.Format("2006-01-02"), d.DaysOverdue, d.LateFee.StringFixed(2))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluation time (RFC3339), defaults to now")
	cmd.Flags().StringVar(&rate, "rate", "", "Daily late fee rate, defaults to LATE_FEE_DAILY_RATE")
	return cmd
}
