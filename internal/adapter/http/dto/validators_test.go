package dto

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := DepositRequest{
		OwnerID:        "  alice  ",
		IdempotencyKey: " dep-1 ",
		Note:           " welcome bonus ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "alice", req.OwnerID)
	assert.Equal(t, "dep-1", req.IdempotencyKey)
	assert.Equal(t, "welcome bonus", req.Note)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := MintRequest{
		OwnerID:     "u1",
		Description: "a lantern <script>alert('x')</script>",
	}
	SanitizeStruct(&req)

	assert.Contains(t, req.Description, "&lt;script&gt;")
	assert.NotContains(t, req.Description, "<script>")
}

func TestSanitizeStruct_DescendsIntoSlices(t *testing.T) {
	req := MintRequest{
		OwnerID:     "u1",
		Description: "x",
		Attributes:  []AttributeDTO{{TraitType: " rarity ", Value: "<b>rare</b>"}},
	}
	SanitizeStruct(&req)

	assert.Equal(t, "rarity", req.Attributes[0].TraitType)
	assert.Equal(t, "&lt;b&gt;rare&lt;/b&gt;", req.Attributes[0].Value)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	req := MintRequest{OwnerID: "carol", Description: "x"}
	SanitizeStruct(&req)
	assert.Nil(t, req.PriceCredits)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	req := DepositRequest{OwnerID: "  dave  "}
	SanitizeStruct(req)
	assert.Equal(t, "  dave  ", req.OwnerID)
}

// --- binding validators ---

func bind(t *testing.T, body string, dst interface{}) error {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c.ShouldBindJSON(dst)
}

func TestSupplyMintRequest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"mintId":"report-reward-00000001","recipientId":"user-123456","amount":5,"reason":"REPORT_REWARD"}`, false},
		{"lowercase reason", `{"mintId":"report-reward-00000001","recipientId":"user-123456","amount":5,"reason":"badge_reward"}`, false},
		{"short mint id", `{"mintId":"short","recipientId":"user-123456","amount":5,"reason":"OTHER"}`, true},
		{"bad recipient", `{"mintId":"report-reward-00000001","recipientId":"a b","amount":5,"reason":"OTHER"}`, true},
		{"zero amount", `{"mintId":"report-reward-00000001","recipientId":"user-123456","amount":0,"reason":"OTHER"}`, true},
		{"fractional amount", `{"mintId":"report-reward-00000001","recipientId":"user-123456","amount":1.5,"reason":"OTHER"}`, true},
		{"unknown reason", `{"mintId":"report-reward-00000001","recipientId":"user-123456","amount":5,"reason":"GIFT"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req SupplyMintRequest
			err := bind(t, tt.body, &req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMintRequest_Validation(t *testing.T) {
	var ok MintRequest
	require.NoError(t, bind(t, `{"ownerId":"u1","description":"a lantern","priceCredits":0,"idempotencyKey":"k-1"}`, &ok))
	require.NotNil(t, ok.PriceCredits)
	assert.Equal(t, int64(0), *ok.PriceCredits)

	var negative MintRequest
	assert.Error(t, bind(t, `{"ownerId":"u1","description":"a lantern","priceCredits":-1}`, &negative))

	var badOwner MintRequest
	assert.Error(t, bind(t, `{"ownerId":"u 1","description":"a lantern"}`, &badOwner))

	var missing MintRequest
	assert.Error(t, bind(t, `{"ownerId":"u1"}`, &missing))

	var badAttr MintRequest
	assert.Error(t, bind(t, `{"ownerId":"u1","description":"x","attributes":[{"trait_type":"","value":"v"}]}`, &badAttr))
}
