package httpapi

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
	"github.com/and161185/qty-planner/internal/service"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenData struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type loginData struct {
	User model.UserIdentity `json:"user"`
	tokenData
}

type masterDataRequest struct {
	Masters []string `json:"masters"`
}

type detailViewRequest struct {
	ProductCode     string `json:"product_code" validate:"required"`
	PublicationDate string `json:"publication_date" validate:"required"`
	PhaseNo         string `json:"phase_no"`
}

type saveRequest struct {
	PublicationDate string           `json:"publication_date" validate:"required"`
	DetailRows      []model.WriteRow `json:"detail_rows" validate:"required,min=1"`
}

// MasterMediaProduct is the only master data set served.
const MasterMediaProduct = "MediaProduct"

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		failErr(w, a.log, r, err)
		return
	}
	u, err := a.auth.Register(r.Context(), service.Registration{
		Email: req.Email, Password: req.Password, FirstName: req.FirstName, LastName: req.LastName,
	})
	if err != nil {
		failErr(w, a.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Registered", Data: u.Identity()})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		failErr(w, a.log, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := a.validate.Struct(req); err != nil {
		fail(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	tok, u, err := a.auth.LoginWithIP(r.Context(), req.Email, req.Password, remoteIP(r))
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			fail(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		failErr(w, a.log, r, err)
		return
	}
	a.log.Info("login", zap.String("user_id", u.ID.String()))
	ok(w, "Login successful", loginData{
		User:      u.Identity(),
		tokenData: a.tokenData(tok),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		fail(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	tok, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		failErr(w, a.log, r, err)
		return
	}
	ok(w, "Token refreshed", a.tokenData(tok))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		fail(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := a.auth.Logout(r.Context(), token); err != nil {
		failErr(w, a.log, r, err)
		return
	}
	ok(w, "Logged out", nil)
}

func (a *API) handleMasterData(w http.ResponseWriter, r *http.Request) {
	var req masterDataRequest
	if err := decode(r, &req); err != nil {
		failErr(w, a.log, r, err)
		return
	}
	for _, m := range req.Masters {
		if m != MasterMediaProduct {
			fail(w, http.StatusBadRequest, "Unknown master data set: "+m)
			return
		}
	}
	data := map[string]any{}
	if len(req.Masters) == 0 || slices.Contains(req.Masters, MasterMediaProduct) {
		list, err := a.plans.MediaProducts(r.Context())
		if err != nil {
			failErr(w, a.log, r, err)
			return
		}
		if list == nil {
			list = []model.MediaProduct{}
		}
		data[MasterMediaProduct] = list
	}
	ok(w, "", data)
}

func (a *API) handleDetailView(w http.ResponseWriter, r *http.Request) {
	var req detailViewRequest
	if err := decode(r, &req); err != nil {
		failErr(w, a.log, r, err)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		fail(w, http.StatusBadRequest, "product_code and publication_date are required")
		return
	}
	rows, err := a.plans.DetailView(r.Context(), req.ProductCode, req.PublicationDate, req.PhaseNo)
	if err != nil {
		failErr(w, a.log, r, err)
		return
	}
	if rows == nil {
		rows = []model.DetailRow{}
	}
	ok(w, "", rows)
}

// handleSave reports the outcome in status_code as well as the HTTP status.
func (a *API) handleSave(w http.ResponseWriter, r *http.Request) {
	c, _ := ClaimsFromCtx(r.Context())

	var req saveRequest
	if err := decode(r, &req); err != nil {
		failErr(w, a.log, r, err)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{StatusCode: http.StatusBadRequest,
			Message: "publication_date and at least one detail row are required"})
		return
	}
	if err := a.plans.Save(r.Context(), c.UserID, req.PublicationDate, req.DetailRows); err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			a.log.Error("save failed", zap.Error(err))
		}
		writeJSON(w, status, envelope{StatusCode: status, Message: msg})
		return
	}
	a.log.Info("quantity plan saved", zap.String("user_id", c.UserID.String()), zap.Int("rows", len(req.DetailRows)))
	writeJSON(w, http.StatusOK, envelope{Success: true, StatusCode: http.StatusOK, Message: "Saved"})
}

func (a *API) tokenData(t model.Tokens) tokenData {
	// rounded down, never negative
	in := int(t.ExpiresAt.Sub(a.now()).Seconds())
	if in < 0 {
		in = 0
	}
	return tokenData{AccessToken: t.AccessToken, ExpiresIn: in}
}
