// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/renameio/v2"

	xglog "github.com/irfnrdh/tensorflow-datasets/internal/log"
)

// writePage writes a rendered catalog page atomically and durably: renameio
// fsyncs the temp file before the rename, so a crash never leaves a torn page
// behind.
func writePage(ctx context.Context, path string, data []byte) error {
	logger := xglog.FromContext(ctx)

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending page file: %w", err)
	}
	defer func() {
		// renameio removes the temp file if it was not committed
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending page file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write page data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace page file: %w", err)
	}
	return nil
}

// pageChecksum returns the hex sha256 of a rendered page. Stored alongside
// the catalog row so the API can detect on-disk drift.
func pageChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
