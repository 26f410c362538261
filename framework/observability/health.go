// Copyright 2024 Potter Framework Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck интерфейс для health checks
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckResult результат health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult результат отдельной проверки
type CheckResult struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// FuncCheck health check из функции
type FuncCheck struct {
	name  string
	check func(ctx context.Context) error
}

// NewFuncCheck создает health check из функции
func NewFuncCheck(name string, check func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, check: check}
}

// Name возвращает имя проверки
func (h *FuncCheck) Name() string {
	return h.name
}

// Check выполняет проверку
func (h *FuncCheck) Check(ctx context.Context) error {
	return h.check(ctx)
}

// HealthRegistry набор liveness и readiness проверок
type HealthRegistry struct {
	timeout         time.Duration
	healthChecks    []HealthCheck
	readinessChecks []HealthCheck
	mu              sync.RWMutex
}

// NewHealthRegistry создает реестр проверок
func NewHealthRegistry(timeout time.Duration) *HealthRegistry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthRegistry{timeout: timeout}
}

// RegisterHealthCheck регистрирует liveness проверку
func (r *HealthRegistry) RegisterHealthCheck(check HealthCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthChecks = append(r.healthChecks, check)
}

// RegisterReadinessCheck регистрирует readiness проверку
func (r *HealthRegistry) RegisterReadinessCheck(check HealthCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readinessChecks = append(r.readinessChecks, check)
}

// Run выполняет liveness проверки
func (r *HealthRegistry) Run(ctx context.Context) HealthCheckResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.mu.RLock()
	checks := r.healthChecks
	r.mu.RUnlock()

	result := HealthCheckResult{
		Status:    "healthy",
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now(),
	}

	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)

		cr := CheckResult{Status: "healthy", Duration: time.Since(start)}
		if err != nil {
			cr.Status = "unhealthy"
			cr.Message = err.Error()
			result.Status = "unhealthy"
		}
		result.Checks[check.Name()] = cr
	}
	return result
}

// Ready выполняет readiness проверки до первой неудачной
func (r *HealthRegistry) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.mu.RLock()
	checks := r.readinessChecks
	r.mu.RUnlock()

	for _, check := range checks {
		if err := check.Check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// HealthCheckHandler возвращает Gin handler для health check
func (r *HealthRegistry) HealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := r.Run(c.Request.Context())
		if result.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ReadinessCheckHandler возвращает Gin handler для readiness check
func (r *HealthRegistry) ReadinessCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := r.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
