package httpapi_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/qty-planner/internal/api"
	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/gateway"
	"github.com/and161185/qty-planner/internal/limiter"
	"github.com/and161185/qty-planner/internal/model"
	"github.com/and161185/qty-planner/internal/quantityplan"
	"github.com/and161185/qty-planner/internal/repository/memory"
	"github.com/and161185/qty-planner/internal/revocation"
	"github.com/and161185/qty-planner/internal/server/httpapi"
	"github.com/and161185/qty-planner/internal/service"
	"github.com/and161185/qty-planner/internal/session"
	"github.com/and161185/qty-planner/internal/tokenstore"
)

type navLog struct {
	mu  sync.Mutex
	nav []session.Nav
}

func (n *navLog) add(v session.Nav) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nav = append(n.nav, v)
}

func (n *navLog) last() session.Nav {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nav[len(n.nav)-1]
}

// TestClientAgainstServer drives the whole client stack against the HTTP API.
func TestClientAgainstServer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	users, plans := memory.NewUserRepo(), memory.NewPlanRepo()
	lim := limiter.NewMemory(nil, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
	auth := service.NewAuthService(users, []byte("e2e-key"), time.Hour, lim, revocation.NewMemory(nil))
	require.NoError(t, service.SeedDemo(ctx, auth, plans))
	srv := httptest.NewServer(httpapi.New(auth, service.NewPlanService(plans, 0), log,
		httpapi.WithRegistry(prometheus.NewRegistry())).Handler())
	t.Cleanup(srv.Close)

	client, err := api.NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	store := tokenstore.NewMemory(nil)
	nav := &navLog{}
	mgr := session.NewManager(client, store, log, session.WithListener(nav.add))
	t.Cleanup(mgr.Close)
	gw := gateway.New(srv.URL, srv.Client(), mgr, log)
	qp := quantityplan.NewService(gw, log)

	res := mgr.SignIn(ctx, service.DemoEmail, "wrong-password")
	require.False(t, res.Success)
	require.Equal(t, "Invalid email or password", res.Message)

	res = mgr.SignIn(ctx, service.DemoEmail, service.DemoPassword)
	require.True(t, res.Success, res.Message)
	require.Equal(t, session.NavAuthenticated, nav.last())
	user := mgr.User()
	require.NotNil(t, user)
	require.Equal(t, "Demo Trainee", user.DisplayName())

	products, err := qp.MediaProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)

	agents, err := qp.Agents(ctx, service.DemoProduct, service.DemoPublication, "")
	require.NoError(t, err)
	require.Len(t, agents, 3)
	require.Len(t, quantityplan.FilterAgents(agents, "harbour"), 1)

	target := agents[1]
	sel := model.Selection{
		ProductCode: service.DemoProduct, PublicationDate: service.DemoPublication,
		ContractNo: target.ContractNo, ItemNo: target.ItemNo,
	}
	detail, err := qp.LoadDetail(ctx, sel, model.FormState{})
	require.NoError(t, err)
	require.True(t, detail.Matched)
	require.Equal(t, target.Name, detail.Form.AgentName)
	require.True(t, quantityplan.Editable(detail.Form.Status))

	delivery := "77"
	form, err := quantityplan.Edit{DeliveryQuantity: &delivery}.Apply(detail.Form)
	require.NoError(t, err)
	row, err := quantityplan.BuildWritePayload(form, detail.Row, sel, user)
	require.NoError(t, err)
	require.Equal(t, user.ID, row.UpdatedBy)
	require.NoError(t, qp.Save(ctx, row))

	detail, err = qp.LoadDetail(ctx, sel, model.FormState{})
	require.NoError(t, err)
	require.Equal(t, "77", detail.Form.DeliveryQuantity)

	// server-side revocation: the 401 triggers a refresh that also fails, so the client signs out
	tok, fresh := mgr.AccessToken()
	require.True(t, fresh)
	require.NoError(t, auth.Logout(ctx, tok))

	_, err = qp.MediaProducts(ctx)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Equal(t, session.StateUnauthenticated, mgr.State())
	require.Equal(t, session.NavUnauthenticated, nav.last())
	_, err = store.Load()
	require.ErrorIs(t, err, errs.ErrNoToken)
}

// TestClientRefreshRotation checks that an explicit refresh swaps the live token.
func TestClientRefreshRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	users, plans := memory.NewUserRepo(), memory.NewPlanRepo()
	lim := limiter.NewMemory(nil, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
	auth := service.NewAuthService(users, []byte("e2e-key"), time.Hour, lim, revocation.NewMemory(nil))
	require.NoError(t, service.SeedDemo(ctx, auth, plans))
	srv := httptest.NewServer(httpapi.New(auth, service.NewPlanService(plans, 0), log,
		httpapi.WithRegistry(prometheus.NewRegistry())).Handler())
	t.Cleanup(srv.Close)

	client, err := api.NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	mgr := session.NewManager(client, tokenstore.NewMemory(nil), log)
	t.Cleanup(mgr.Close)

	require.True(t, mgr.SignIn(ctx, service.DemoEmail, service.DemoPassword).Success)
	before, _ := mgr.AccessToken()
	require.NoError(t, mgr.Refresh(ctx))
	after, fresh := mgr.AccessToken()
	require.True(t, fresh)
	require.NotEqual(t, before, after)

	_, err = auth.Verify(ctx, before)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	mgr.SignOut(ctx)
	_, err = auth.Verify(ctx, after)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}
