package memory

import (
	"testing"

	"github.com/jamestaylor0685/wfrp-group-advantage/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, New())
}
