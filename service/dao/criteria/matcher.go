package criteria

import (
	"strings"

	"github.com/viant/kcore/service/dao"
)

// FilterByState reports whether state satisfies every State parameter.
// Parameters with other names are ignored; no parameters match everything.
func FilterByState(state string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || !strings.EqualFold(parameter.Name, dao.StateParameter) {
			continue
		}
		if !matchState(state, parameter.Value) {
			return false
		}
	}
	return true
}

func matchState(state string, value interface{}) bool {
	switch actual := value.(type) {
	case string:
		return strings.EqualFold(state, actual)
	case []string:
		if len(actual) == 0 {
			return true
		}
		for _, candidate := range actual {
			if strings.EqualFold(state, candidate) {
				return true
			}
		}
		return false
	}
	return true
}
