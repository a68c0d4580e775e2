package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/kcore/service/dao"
)

func TestFilterByState(t *testing.T) {
	testCases := []struct {
		name       string
		state      string
		parameters []*dao.Parameter
		expect     bool
	}{
		{name: "no parameters", state: "ready", expect: true},
		{name: "single match", state: "ready", parameters: []*dao.Parameter{dao.NewParameter("State", "ready")}, expect: true},
		{name: "case insensitive", state: "ready", parameters: []*dao.Parameter{dao.NewParameter("state", "READY")}, expect: true},
		{name: "single mismatch", state: "blocked", parameters: []*dao.Parameter{dao.NewParameter("State", "ready")}, expect: false},
		{name: "set match", state: "blocked", parameters: []*dao.Parameter{dao.NewParameter("State", "ready", "blocked")}, expect: true},
		{name: "set mismatch", state: "running", parameters: []*dao.Parameter{dao.NewParameter("State", "ready", "blocked")}, expect: false},
		{name: "other parameter ignored", state: "running", parameters: []*dao.Parameter{dao.NewParameter("Name", "x")}, expect: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, FilterByState(tc.state, tc.parameters))
		})
	}
}
