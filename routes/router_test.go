package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	"github.com/BerniceZTT/crm_pool/controllers"
	"github.com/BerniceZTT/crm_pool/middleware"
	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/service"
	"github.com/BerniceZTT/crm_pool/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type RouterSuite struct {
	suite.Suite
	router *gin.Engine
	tokens map[string]string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("router-test")

	store := repository.NewMemoryStore()
	svc := service.New(store, repository.NewMemorySequence(), nil, service.DefaultOptions())

	s.router = gin.New()
	s.router.Use(middleware.Recovery(), middleware.ErrorHandler())
	RegisterRoutes(s.router, controllers.NewHandler(svc), store)

	s.tokens = make(map[string]string)
	for _, u := range []utils.LoginUser{
		{ID: "m1", Role: string(models.UserRoleSALES_MANAGER), Username: "manager"},
		{ID: "u1", Role: string(models.UserRoleSALES), Username: "alice"},
		{ID: "u2", Role: string(models.UserRoleSALES), Username: "bob"},
	} {
		token, err := utils.GenerateToken(u, time.Hour)
		s.Require().NoError(err)
		s.tokens[u.Username] = token
	}
}

func (s *RouterSuite) do(method, path, user string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *RouterSuite) createCustomer(user string, req models.CustomerCreateRequest) models.Customer {
	w, env := s.do(http.MethodPost, "/api/customers", user, req)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var c models.Customer
	s.Require().NoError(json.Unmarshal(env.Data, &c))
	return c
}

func (s *RouterSuite) TestHealth() {
	w, _ := s.do(http.MethodGet, "/api/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestRequiresToken() {
	w, env := s.do(http.MethodGet, "/api/pool/customer", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("MISSING_TOKEN", env.Code)
}

func (s *RouterSuite) TestCreateCustomer() {
	c := s.createCustomer("alice", models.CustomerCreateRequest{Name: "ACME", Region: "Shanghai"})
	s.NotEmpty(c.ID)
	s.Equal("u1", c.OwnerID)
	s.Equal(models.PoolStatePrivate, c.PoolState)

	w, env := s.do(http.MethodPost, "/api/customers", "bob", models.CustomerCreateRequest{Name: "acme", Region: "Shanghai"})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(string(utils.CodeDuplicateName), env.Code)

	w, _ = s.do(http.MethodPost, "/api/customers", "alice", map[string]string{"region": "Beijing"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestClaimConflict() {
	c := s.createCustomer("manager", models.CustomerCreateRequest{Name: "Pool Co", Public: true})

	w, env := s.do(http.MethodPost, "/api/pool/customer/"+c.ID+"/claim", "alice", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.True(env.Success)

	w, env = s.do(http.MethodPost, "/api/pool/customer/"+c.ID+"/claim", "bob", nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(string(utils.CodeAlreadyClaimed), env.Code)

	w, env = s.do(http.MethodPost, "/api/pool/customer/missing/claim", "bob", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(string(utils.CodeNotFound), env.Code)
}

func (s *RouterSuite) TestBatchClaimPartialFailure() {
	free := s.createCustomer("manager", models.CustomerCreateRequest{Name: "Free Co", Public: true})
	taken := s.createCustomer("alice", models.CustomerCreateRequest{Name: "Taken Co"})

	w, env := s.do(http.MethodPost, "/api/pool/customer/batch-claim", "bob", models.BatchClaimRequest{IDs: []string{free.ID, taken.ID}})
	s.Require().Equal(http.StatusOK, w.Code)
	s.False(env.Success)
	s.Equal(string(utils.CodePartialBatch), env.Code)

	var result models.BatchResult
	s.Require().NoError(json.Unmarshal(env.Data, &result))
	s.Require().Len(result.Outcomes, 2)
	s.Equal(free.ID, result.Outcomes[0].ID)
	s.True(result.Outcomes[0].OK)
	s.Equal(taken.ID, result.Outcomes[1].ID)
	s.Equal(string(utils.CodeAlreadyClaimed), result.Outcomes[1].Code)
}

func (s *RouterSuite) TestAssignRequiresManager() {
	c := s.createCustomer("alice", models.CustomerCreateRequest{Name: "ACME"})
	path := "/api/pool/customer/" + c.ID + "/assign"

	w, env := s.do(http.MethodPost, path, "alice", models.AssignRequest{OwnerID: "u2"})
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("INSUFFICIENT_PERMISSION", env.Code)

	w, _ = s.do(http.MethodPost, path, "manager", models.AssignRequest{OwnerID: "u2"})
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestTransferFromOthersForbiddenForSales() {
	c := s.createCustomer("alice", models.CustomerCreateRequest{Name: "ACME"})
	path := "/api/pool/customer/" + c.ID + "/transfer"

	w, _ := s.do(http.MethodPost, path, "bob", models.TransferRequest{FromOwnerID: "u1", ToOwnerID: "u2"})
	s.Equal(http.StatusForbidden, w.Code)

	w, env := s.do(http.MethodPost, path, "bob", models.TransferRequest{FromOwnerID: "u2", ToOwnerID: "u2"})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(string(utils.CodeOwnershipMismatch), env.Code)

	w, _ = s.do(http.MethodPost, path, "alice", models.TransferRequest{FromOwnerID: "u1", ToOwnerID: "u2"})
	s.Equal(http.StatusOK, w.Code)
}

func (s *RouterSuite) TestLeadConvert() {
	w, env := s.do(http.MethodPost, "/api/leads", "alice", models.LeadCreateRequest{Name: "Inbound"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var lead models.Lead
	s.Require().NoError(json.Unmarshal(env.Data, &lead))
	c := s.createCustomer("alice", models.CustomerCreateRequest{Name: "Inbound Co"})

	path := "/api/leads/" + lead.ID + "/convert"
	w, _ = s.do(http.MethodPost, path, "alice", gin.H{"customerId": c.ID})
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(http.MethodPost, path, "alice", gin.H{"customerId": c.ID})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(string(utils.CodeAlreadyConverted), env.Code)
}
