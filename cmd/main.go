package main

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pam_service/internal/bonus"
	"pam_service/internal/cache"
	"pam_service/internal/config"
	"pam_service/internal/deposit"
	"pam_service/internal/ledger"
	"pam_service/internal/metrics"
	"pam_service/internal/middleware"
	"pam_service/internal/settlement"
	"pam_service/internal/withdrawal"
)

func main() {
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DBConnStr), &gorm.Config{})
	if err != nil {
		log.Fatalln(err)
	}

	store := ledger.NewGormStore(db)
	if err := store.Migrate(); err != nil {
		log.Fatalln(err)
	}
	if err := store.EnsureOperator(context.Background(), cfg.OperatorID, cfg.OperatorName); err != nil {
		log.Fatalln(err)
	}

	stateCache := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	settlementService := settlement.NewService(store, stateCache)
	depositService := deposit.NewService(store)
	withdrawalService := withdrawal.NewService(store)
	bonusService := bonus.NewService(store)

	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("/", middleware.Auth(cfg.JWTSecret, store))

	authed.POST("/bets/settle", func(c *gin.Context) {
		var req settlement.SettleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userID, operatorID, err := middleware.Identity(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		req.UserID = userID
		req.OperatorID = operatorID

		snap, err := settlementService.SettleBet(c.Request.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, settlement.ErrInsufficientFunds):
				metrics.BetsSettled.WithLabelValues("nsf").Inc()
				c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
			case errors.Is(err, settlement.ErrGameDisabled):
				metrics.BetsSettled.WithLabelValues("rejected").Inc()
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			case errors.Is(err, settlement.ErrInvalidAmount):
				metrics.BetsSettled.WithLabelValues("rejected").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, ledger.ErrSessionNotFound):
				metrics.BetsSettled.WithLabelValues("rejected").Inc()
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			default:
				metrics.BetsSettled.WithLabelValues("error").Inc()
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		metrics.BetsSettled.WithLabelValues("settled").Inc()
		c.JSON(http.StatusOK, snap)
	})

	authed.GET("/balance", func(c *gin.Context) {
		userID, _, err := middleware.Identity(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		snap, err := settlementService.Balance(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, ledger.ErrBalanceNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	authed.POST("/deposits", func(c *gin.Context) {
		var req deposit.InitiateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userID, operatorID, err := middleware.Identity(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		req.UserID = userID
		req.OperatorID = operatorID

		dep, err := depositService.InitiateDeposit(c.Request.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrProductNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, deposit.ErrInvalidAmount):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusCreated, dep)
	})

	authed.POST("/deposits/:deposit_id/complete", func(c *gin.Context) {
		dep, err := depositService.CompleteDeposit(c.Request.Context(), c.Param("deposit_id"))
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrDepositNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, deposit.ErrNotPending):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		metrics.DepositsCompleted.Inc()
		c.JSON(http.StatusOK, dep)
	})

	authed.POST("/withdrawals", func(c *gin.Context) {
		var req struct {
			Amount int64 `json:"amount"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userID, operatorID, err := middleware.Identity(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		wl, err := withdrawalService.RequestWithdrawal(c.Request.Context(), userID, operatorID, req.Amount)
		if err != nil {
			switch {
			case errors.Is(err, withdrawal.ErrInsufficientFunds):
				metrics.WithdrawalsRequested.WithLabelValues("nsf").Inc()
				c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
			case errors.Is(err, withdrawal.ErrWageringNotMet):
				metrics.WithdrawalsRequested.WithLabelValues("wagering_not_met").Inc()
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, withdrawal.ErrInvalidAmount):
				metrics.WithdrawalsRequested.WithLabelValues("rejected").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				metrics.WithdrawalsRequested.WithLabelValues("error").Inc()
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		metrics.WithdrawalsRequested.WithLabelValues("accepted").Inc()
		c.JSON(http.StatusCreated, wl)
	})

	authed.POST("/bonuses/sweep", func(c *gin.Context) {
		userID, _, err := middleware.Identity(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		expired, err := bonusService.SweepExpired(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"expired": expired})
	})

	authed.POST("/bonuses/cancel", func(c *gin.Context) {
		userID, _, err := middleware.Identity(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		cancelled, err := bonusService.CancelUserBonuses(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
	})

	authed.GET("/games/:game_id/stats", func(c *gin.Context) {
		stats, err := stateCache.GameStats(c.Request.Context(), c.Param("game_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	log.Printf("Server started on :%s", cfg.AppPort)
	if err := r.Run(":" + cfg.AppPort); err != nil {
		log.Fatal(err)
	}
}
