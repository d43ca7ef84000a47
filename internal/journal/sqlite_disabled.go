//go:build !sqlite

package journal

import (
	"errors"

	logx "crontick/pkg/logx"
)

func openSQLite(Config, logx.Logger) (Store, error) {
	return nil, errors.New("sqlite journal not built: build with -tags sqlite")
}
