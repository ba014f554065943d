package protocol

import (
	"strings"

	"udpchain/internal/codec"
)

// blockListSeparator joins block filenames (hex content hashes) within a
// single overflow field; hex never contains a comma.
const blockListSeparator = ","

// GetBlocksAck answers GetBlocks with the full inventory of locally
// stored block filenames.
type GetBlocksAck struct {
	Blocks []string
}

func (p GetBlocksAck) EventCode() EventCode { return EventGetBlocksAck }

func (p GetBlocksAck) Encode() []byte {
	return codec.NewBuilder().AddStringOverflow(strings.Join(p.Blocks, blockListSeparator)).Build()
}

func decodeGetBlocksAck(fields [][]byte) (Payload, error) {
	if len(fields) == 0 {
		return GetBlocksAck{}, nil
	}
	joined := codec.JoinOverflow(fields, 0)
	if len(joined) == 0 {
		return GetBlocksAck{}, nil
	}
	return GetBlocksAck{Blocks: strings.Split(string(joined), blockListSeparator)}, nil
}

// SyncBlocksReq requests a single named block by its legacy alias to
// GetBlock, carried over as a distinct wire event per the original
// protocol's closed enum.
type SyncBlocksReq struct {
	Block string
}

func (p SyncBlocksReq) EventCode() EventCode { return EventSyncBlocksReq }

func (p SyncBlocksReq) Encode() []byte {
	return codec.NewBuilder().AddStringOverflow(p.Block).Build()
}

func decodeSyncBlocksReq(fields [][]byte) (Payload, error) {
	if len(fields) == 0 {
		return SyncBlocksReq{}, nil
	}
	block := codec.JoinOverflow(fields, 0)
	return SyncBlocksReq{Block: string(block)}, nil
}

// SyncBlocksReqAck answers SyncBlocksReq with the full persisted record,
// the legacy counterpart to GetBlockAck.
type SyncBlocksReqAck struct {
	Filename  string
	Index     uint64
	Content   string
	Timestamp int64
	Nonce     uint64
	Prev      string
	Hash      string
}

func (p SyncBlocksReqAck) EventCode() EventCode { return EventSyncBlocksReqAck }

func (p SyncBlocksReqAck) Encode() []byte {
	return codec.NewBuilder().
		AddString(p.Filename).
		AddUint64(p.Index).
		AddString(p.Content).
		AddInt64(p.Timestamp).
		AddUint64(p.Nonce).
		AddString(p.Prev).
		AddStringOverflow(p.Hash).
		Build()
}

func decodeSyncBlocksReqAck(fields [][]byte) (Payload, error) {
	filename, err := codec.FieldString(fields, 0)
	if err != nil {
		return nil, err
	}
	index, err := codec.FieldUint64(fields, 1)
	if err != nil {
		return nil, err
	}
	content, err := codec.FieldString(fields, 2)
	if err != nil {
		return nil, err
	}
	timestamp, err := codec.FieldInt64(fields, 3)
	if err != nil {
		return nil, err
	}
	nonce, err := codec.FieldUint64(fields, 4)
	if err != nil {
		return nil, err
	}
	prev, err := codec.FieldString(fields, 5)
	if err != nil {
		return nil, err
	}
	hash := codec.JoinOverflow(fields, 6)
	return SyncBlocksReqAck{
		Filename:  filename,
		Index:     index,
		Content:   content,
		Timestamp: timestamp,
		Nonce:     nonce,
		Prev:      prev,
		Hash:      string(hash),
	}, nil
}

func init() {
	registerDecoder(EventGetBlocksAck, decodeGetBlocksAck)
	registerDecoder(EventSyncBlocksReq, decodeSyncBlocksReq)
	registerDecoder(EventSyncBlocksReqAck, decodeSyncBlocksReqAck)
}
