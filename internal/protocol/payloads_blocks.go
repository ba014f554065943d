package protocol

import "udpchain/internal/codec"

// NewBlock starts a collection round: the initiator's head-block hash is
// sent as prev so recipients know what their BlockData should build on
// top of.
type NewBlock struct {
	Prev string
}

func (p NewBlock) EventCode() EventCode { return EventNewBlock }

func (p NewBlock) Encode() []byte {
	return codec.NewBuilder().AddStringOverflow(p.Prev).Build()
}

func decodeNewBlock(fields [][]byte) (Payload, error) {
	if len(fields) == 0 {
		return NewBlock{}, nil
	}
	prev, err := codec.FieldString(fields, 0)
	if err != nil {
		return nil, err
	}
	return NewBlock{Prev: prev}, nil
}

// BlockData is a peer's contribution to the pending block content,
// keyed by a unique key so duplicate submissions are idempotent.
type BlockData struct {
	UniqueKey string
	Content   string
}

func (p BlockData) EventCode() EventCode { return EventBlockData }

func (p BlockData) Encode() []byte {
	return codec.NewBuilder().
		AddString(p.UniqueKey).
		AddStringOverflow(p.Content).
		Build()
}

func decodeBlockData(fields [][]byte) (Payload, error) {
	if len(fields) == 0 {
		return BlockData{}, nil
	}
	key, err := codec.FieldString(fields, 0)
	if err != nil {
		return nil, err
	}
	content := codec.JoinOverflow(fields, 1)
	return BlockData{UniqueKey: key, Content: string(content)}, nil
}

// BlockGen asks a peer to mine a candidate block: the collected content,
// the block's position and timestamp, the previous block's hash, and the
// hex difficulty prefix the resulting hash must match.
type BlockGen struct {
	Index     uint64
	Timestamp int64
	Prev      string
	SignKey   string
	Content   string
}

func (p BlockGen) EventCode() EventCode { return EventBlockGen }

func (p BlockGen) Encode() []byte {
	return codec.NewBuilder().
		AddUint64(p.Index).
		AddInt64(p.Timestamp).
		AddString(p.Prev).
		AddString(p.SignKey).
		AddStringOverflow(p.Content).
		Build()
}

func decodeBlockGen(fields [][]byte) (Payload, error) {
	index, err := codec.FieldUint64(fields, 0)
	if err != nil {
		return nil, err
	}
	timestamp, err := codec.FieldInt64(fields, 1)
	if err != nil {
		return nil, err
	}
	prev, err := codec.FieldString(fields, 2)
	if err != nil {
		return nil, err
	}
	signKey, err := codec.FieldString(fields, 3)
	if err != nil {
		return nil, err
	}
	content := codec.JoinOverflow(fields, 4)
	return BlockGen{
		Index:     index,
		Timestamp: timestamp,
		Prev:      prev,
		SignKey:   signKey,
		Content:   string(content),
	}, nil
}

// BlockFound announces a finalized block to the network: the full record
// save for validation — recipients recompute the hash themselves.
type BlockFound struct {
	Index     uint64
	Content   string
	Timestamp int64
	Prev      string
	Nonce     uint64
	Hash      string
}

func (p BlockFound) EventCode() EventCode { return EventBlockFound }

func (p BlockFound) Encode() []byte {
	return codec.NewBuilder().
		AddUint64(p.Index).
		AddString(p.Content).
		AddInt64(p.Timestamp).
		AddString(p.Prev).
		AddUint64(p.Nonce).
		AddString(p.Hash).
		Build()
}

func decodeBlockFound(fields [][]byte) (Payload, error) {
	index, err := codec.FieldUint64(fields, 0)
	if err != nil {
		return nil, err
	}
	content, err := codec.FieldString(fields, 1)
	if err != nil {
		return nil, err
	}
	timestamp, err := codec.FieldInt64(fields, 2)
	if err != nil {
		return nil, err
	}
	prev, err := codec.FieldString(fields, 3)
	if err != nil {
		return nil, err
	}
	nonce, err := codec.FieldUint64(fields, 4)
	if err != nil {
		return nil, err
	}
	hash, err := codec.FieldString(fields, 5)
	if err != nil {
		return nil, err
	}
	return BlockFound{
		Index:     index,
		Content:   content,
		Timestamp: timestamp,
		Prev:      prev,
		Nonce:     nonce,
		Hash:      hash,
	}, nil
}

// HashVal broadcasts a mining result without its hash: recipients must
// recompute it to vote.
type HashVal struct {
	Content   string
	Timestamp int64
	Index     uint64
	Prev      string
	Nonce     uint64
}

func (p HashVal) EventCode() EventCode { return EventHashVal }

func (p HashVal) Encode() []byte {
	return codec.NewBuilder().
		AddString(p.Content).
		AddInt64(p.Timestamp).
		AddUint64(p.Index).
		AddString(p.Prev).
		AddUint64(p.Nonce).
		Build()
}

func decodeHashVal(fields [][]byte) (Payload, error) {
	content, err := codec.FieldString(fields, 0)
	if err != nil {
		return nil, err
	}
	timestamp, err := codec.FieldInt64(fields, 1)
	if err != nil {
		return nil, err
	}
	index, err := codec.FieldUint64(fields, 2)
	if err != nil {
		return nil, err
	}
	prev, err := codec.FieldString(fields, 3)
	if err != nil {
		return nil, err
	}
	nonce, err := codec.FieldUint64(fields, 4)
	if err != nil {
		return nil, err
	}
	return HashVal{
		Content:   content,
		Timestamp: timestamp,
		Index:     index,
		Prev:      prev,
		Nonce:     nonce,
	}, nil
}

// HashValAck is a peer's vote: the hash it recomputed for a given index.
type HashValAck struct {
	Index uint64
	Hash  string
}

func (p HashValAck) EventCode() EventCode { return EventHashValAck }

func (p HashValAck) Encode() []byte {
	return codec.NewBuilder().
		AddUint64(p.Index).
		AddStringOverflow(p.Hash).
		Build()
}

func decodeHashValAck(fields [][]byte) (Payload, error) {
	index, err := codec.FieldUint64(fields, 0)
	if err != nil {
		return nil, err
	}
	hash := codec.JoinOverflow(fields, 1)
	return HashValAck{Index: index, Hash: string(hash)}, nil
}

// GetBlock requests a single block by filename (content hash).
type GetBlock struct {
	Block string
}

func (p GetBlock) EventCode() EventCode { return EventGetBlock }

func (p GetBlock) Encode() []byte {
	return codec.NewBuilder().AddStringOverflow(p.Block).Build()
}

func decodeGetBlock(fields [][]byte) (Payload, error) {
	if len(fields) == 0 {
		return GetBlock{}, nil
	}
	block := codec.JoinOverflow(fields, 0)
	return GetBlock{Block: string(block)}, nil
}

// GetBlockAck answers GetBlock with the full persisted record.
type GetBlockAck struct {
	Filename  string
	Index     uint64
	Content   string
	Timestamp int64
	Nonce     uint64
	Prev      string
	Hash      string
}

func (p GetBlockAck) EventCode() EventCode { return EventGetBlockAck }

func (p GetBlockAck) Encode() []byte {
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

func decodeGetBlockAck(fields [][]byte) (Payload, error) {
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
	return GetBlockAck{
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
	registerDecoder(EventNewBlock, decodeNewBlock)
	registerDecoder(EventBlockData, decodeBlockData)
	registerDecoder(EventBlockGen, decodeBlockGen)
	registerDecoder(EventBlockFound, decodeBlockFound)
	registerDecoder(EventHashVal, decodeHashVal)
	registerDecoder(EventHashValAck, decodeHashValAck)
	registerDecoder(EventGetBlock, decodeGetBlock)
	registerDecoder(EventGetBlockAck, decodeGetBlockAck)
}
