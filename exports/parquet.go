// Package exports writes ledger history to parquet files for offline audit.
package exports

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"cdpledger/core/types"
)

// Source is the ledger history an export reads.
type Source interface {
	Height() uint64
	BlockByHeight(height uint64) (*types.Block, error)
	Receipts(txid common.Hash) (types.Receipts, bool, error)
	ClosedCDP(id common.Hash) (*types.ClosedCDP, bool, error)
	ClosedCDPsByTx(txid common.Hash) ([]common.Hash, error)
}

type receiptRow struct {
	Height  int64  `parquet:"name=height, type=INT64"`
	TxIndex int32  `parquet:"name=tx_index, type=INT32"`
	TxID    string `parquet:"name=txid, type=BYTE_ARRAY, convertedtype=UTF8"`
	TxType  string `parquet:"name=tx_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq     int32  `parquet:"name=seq, type=INT32"`
	Code    string `parquet:"name=code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Op      string `parquet:"name=op, type=BYTE_ARRAY, convertedtype=UTF8"`
	From    string `parquet:"name=from_uid, type=BYTE_ARRAY, convertedtype=UTF8"`
	To      string `parquet:"name=to_uid, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol  string `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount  uint64 `parquet:"name=amount, type=INT64, convertedtype=UINT_64"`
}

type closedCDPRow struct {
	Height    int64  `parquet:"name=height, type=INT64"`
	TxID      string `parquet:"name=txid, type=BYTE_ARRAY, convertedtype=UTF8"`
	CdpID     string `parquet:"name=cdp_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CloseType string `parquet:"name=close_type, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Range is an inclusive span of block heights.
type Range struct {
	From uint64
	To   uint64
}

func (r Range) clamp(tip uint64) (Range, error) {
	if r.To == 0 || r.To > tip {
		r.To = tip
	}
	if r.From > r.To {
		return r, fmt.Errorf("exports: empty range %d..%d", r.From, r.To)
	}
	return r, nil
}

// ExportReceipts writes one row per balance receipt of every transaction in
// the range and returns the row count. A zero To means the chain tip.
func ExportReceipts(src Source, span Range, path string) (int, error) {
	span, err := span.clamp(src.Height())
	if err != nil {
		return 0, err
	}
	var rows []any
	err = walkTxs(src, span, func(height uint64, index int, tx *types.Transaction, txid common.Hash) error {
		receipts, ok, err := src.Receipts(txid)
		if err != nil || !ok {
			return err
		}
		for seq, r := range receipts {
			rows = append(rows, &receiptRow{
				Height:  int64(height),
				TxIndex: int32(index),
				TxID:    txid.Hex(),
				TxType:  tx.Type.String(),
				Seq:     int32(seq),
				Code:    r.Code.String(),
				Op:      r.Op.String(),
				From:    uidString(r.From),
				To:      uidString(r.To),
				Symbol:  r.Symbol,
				Amount:  r.Amount,
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), writeParquet(path, new(receiptRow), rows)
}

// ExportClosedCDPs writes the closed-position audit records of the range.
// The ledger only keeps them when closed positions are persisted.
func ExportClosedCDPs(src Source, span Range, path string) (int, error) {
	span, err := span.clamp(src.Height())
	if err != nil {
		return 0, err
	}
	var rows []any
	err = walkTxs(src, span, func(height uint64, _ int, _ *types.Transaction, txid common.Hash) error {
		ids, err := src.ClosedCDPsByTx(txid)
		if err != nil {
			return err
		}
		for _, id := range ids {
			rec, ok, err := src.ClosedCDP(id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("exports: tx %s names missing closed cdp %s", txid.Hex(), id.Hex())
			}
			rows = append(rows, &closedCDPRow{
				Height:    int64(height),
				TxID:      txid.Hex(),
				CdpID:     rec.CdpID.Hex(),
				CloseType: rec.CloseType.String(),
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), writeParquet(path, new(closedCDPRow), rows)
}

func walkTxs(src Source, span Range, fn func(height uint64, index int, tx *types.Transaction, txid common.Hash) error) error {
	for h := span.From; h <= span.To; h++ {
		block, err := src.BlockByHeight(h)
		if err != nil {
			return fmt.Errorf("exports: block %d: %w", h, err)
		}
		for i, tx := range block.Transactions {
			if err := fn(h, i, tx, tx.Hash()); err != nil {
				return err
			}
		}
	}
	return nil
}

func uidString(u types.UserID) string {
	if u.IsEmpty() {
		return ""
	}
	return u.String()
}

func writeParquet(path string, schema any, rows []any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("exports: close parquet file: %w", err)
	}
	return nil
}
