package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/kmohamed-dz/abcher/internal/identity"
	"github.com/kmohamed-dz/abcher/internal/model"
	"github.com/kmohamed-dz/abcher/internal/onboarding"
	"github.com/kmohamed-dz/abcher/pkg/logger"
	"github.com/kmohamed-dz/abcher/prometheus"
)

// OnboardingHandler serves the account bootstrap and tenant provisioning
// endpoints. All dependencies are injected; there is no package-level
// client handle.
type OnboardingHandler struct {
	resolver   *identity.Resolver
	onboarding *onboarding.Service
}

// NewOnboardingHandler wires the handler to its services.
func NewOnboardingHandler(resolver *identity.Resolver, svc *onboarding.Service) *OnboardingHandler {
	return &OnboardingHandler{resolver: resolver, onboarding: svc}
}

// resolve runs the identity resolver and writes the error response itself
// when the request cannot proceed. A nil identity with a nil error means
// the response has been written.
func (h *OnboardingHandler) resolve(c echo.Context) (*identity.Identity, *model.Profile, error) {
	log := logger.FromEcho(c)

	ident, profile, err := h.resolver.Resolve(c.Request().Context())
	if err != nil {
		log.Error("profile resolution failed", zap.Error(err))
		prometheus.RecordOnboardingError("store_error")
		return nil, nil, c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load profile"})
	}
	if ident == nil {
		prometheus.RecordOnboardingError("unauthorized")
		return nil, nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return ident, profile, nil
}

// profileContext returns the caller's profile, or a synthetic one carrying
// just the identity when the row is still hidden by row policy. Onboarding
// writes are keyed on the identity id, so they work either way.
func profileContext(ident *identity.Identity, profile *model.Profile) *model.Profile {
	if profile != nil {
		return profile
	}
	return &model.Profile{ID: ident.ID, FullName: ident.FallbackName()}
}

// Me runs the identity resolver and reports the derived onboarding state.
// Protected screens call this on every entry and gate on state == ready.
func (h *OnboardingHandler) Me(c echo.Context) error {
	prometheus.RecordOnboardingOperation("resolve")

	ident, profile, err := h.resolve(c)
	if ident == nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"identity": ident,
		"profile":  profile,
		"state":    onboarding.DeriveState(ident, profile),
	})
}

// SelectRole persists the caller's role choice.
func (h *OnboardingHandler) SelectRole(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordOnboardingOperation("select_role")

	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordOnboardingError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		prometheus.RecordOnboardingError("invalid_role")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ident, profile, resErr := h.resolve(c)
	if ident == nil {
		return resErr
	}
	profile = profileContext(ident, profile)

	if err := h.onboarding.SelectRole(c.Request().Context(), profile, role); err != nil {
		log.Error("role selection failed", zap.Error(err))
		prometheus.RecordOnboardingError("store_error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not save role"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"profile": profile,
		"state":   onboarding.DeriveState(ident, profile),
	})
}

// CreateSchool provisions a new school with the caller as its admin.
func (h *OnboardingHandler) CreateSchool(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordOnboardingOperation("create_school")

	var req struct {
		Name    string `json:"name"`
		Region  string `json:"region"`
		Address string `json:"address"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordOnboardingError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" || req.Region == "" {
		prometheus.RecordOnboardingError("incomplete_school")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and region are required"})
	}

	ident, profile, resErr := h.resolve(c)
	if ident == nil {
		return resErr
	}
	profile = profileContext(ident, profile)

	defer prometheus.TrackDBOperation("insert")(time.Now())

	school, err := h.onboarding.CreateSchool(c.Request().Context(), profile, req.Name, req.Region, req.Address)
	if err != nil {
		log.Error("school creation failed", zap.Error(err))
		prometheus.RecordOnboardingError("school_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "school creation failed"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"school":  school,
		"profile": profile,
		"state":   onboarding.DeriveState(ident, profile),
	})
}

// JoinSchool links the caller to an existing school by join code.
func (h *OnboardingHandler) JoinSchool(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordOnboardingOperation("join_school")

	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordOnboardingError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	ident, profile, resErr := h.resolve(c)
	if ident == nil {
		return resErr
	}
	profile = profileContext(ident, profile)

	if err := h.onboarding.JoinSchool(c.Request().Context(), profile, req.Code); err != nil {
		if errors.Is(err, onboarding.ErrCodeNotFound) {
			prometheus.RecordOnboardingError("code_not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "school code not found"})
		}
		log.Error("school join failed", zap.Error(err))
		prometheus.RecordOnboardingError("store_error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not join school"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"profile": profile,
		"state":   onboarding.DeriveState(ident, profile),
	})
}
