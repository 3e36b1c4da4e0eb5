package execution

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// joinPartitions is the grace-hash fan-out: both inputs are split into this
// many disk partitions before any hash table is built.
const joinPartitions = 8

// Partitioning and probing use distinct seeds so that collisions in the
// in-memory probe table are independent of partition placement.
const (
	partitionSeed = 0x8e57_1f3a_d2c9_0b64
	probeSeed     = 0x41c6_4e6d_9b1d_5c07
)

func hashKeys(t *table.Tuple, keys []Expression, seed uint64) uint64 {
	h := uint64(14695981039346656037)
	for _, k := range keys {
		h = (h ^ k.Evaluate(t).HashSeeded(seed)) * 1099511628211
	}

	return h
}

// HashJoin is a grace hash join over equi-key lists. Both inputs are
// partitioned onto disk; each partition then builds an in-memory table from
// the right side and streams the left side through it. LeftJoin emits
// unmatched left rows padded with NULLs.
type HashJoin struct {
	ctx         *Context
	left, right Executor
	leftKeys    []Expression
	rightKeys   []Expression
	joinType    JoinType
	schema      *table.Schema

	leftParts  [joinPartitions]run
	rightParts [joinPartitions]run

	part    int
	probe   map[uint64][]*table.Tuple
	leftRd  *runReader
	pending []*table.Tuple
	done    bool
}

func NewHashJoin(
	ctx *Context,
	left, right Executor,
	leftKeys, rightKeys []Expression,
	joinType JoinType,
) *HashJoin {
	return &HashJoin{
		ctx:       ctx,
		left:      left,
		right:     right,
		leftKeys:  leftKeys,
		rightKeys: rightKeys,
		joinType:  joinType,
		schema:    table.MergeSchemas(left.OutputSchema(), right.OutputSchema()),
	}
}

func (e *HashJoin) Init() error {
	e.releaseRuns()
	e.part = -1
	e.probe = nil
	e.leftRd = nil
	e.pending = nil
	e.done = false

	if err := e.left.Init(); err != nil {
		return errors.Wrap(err, "init left input")
	}
	if err := e.right.Init(); err != nil {
		return errors.Wrap(err, "init right input")
	}

	if err := e.partition(e.left, e.leftKeys, &e.leftParts); err != nil {
		return err
	}

	return e.partition(e.right, e.rightKeys, &e.rightParts)
}

// partition drains one input, scattering its rows across the disk
// partitions by the partition hash of the key list.
func (e *HashJoin) partition(
	input Executor,
	keys []Expression,
	parts *[joinPartitions]run,
) error {
	writers := [joinPartitions]*runWriter{}
	for i := range writers {
		writers[i] = newRunWriter(e.ctx.Pool())
	}

	var (
		tuples []*table.Tuple
		rids   []common.RecordID
	)
	for {
		tuples = tuples[:0]
		rids = rids[:0]
		if !input.Next(&tuples, &rids, common.BatchSize) {
			break
		}

		for _, t := range tuples {
			p := hashKeys(t, keys, partitionSeed) % joinPartitions
			if err := writers[p].Append(t); err != nil {
				for i := range writers {
					writers[i].Finish().release(e.ctx.Pool())
				}

				return errors.Wrap(err, "spill join partition")
			}
		}
	}

	for i := range writers {
		parts[i] = writers[i].Finish()
	}

	return nil
}

func (e *HashJoin) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	produced := 0
	for produced < batchSize && !e.done {
		if len(e.pending) > 0 {
			t := e.pending[0]
			e.pending = e.pending[1:]

			*tuples = append(*tuples, t)
			*rids = append(*rids, common.RecordID{})
			produced++

			continue
		}

		if e.leftRd == nil {
			if !e.advancePartition() {
				e.done = true
				e.releaseRuns()

				break
			}

			continue
		}

		lt, ok, err := e.leftRd.Next()
		if err != nil {
			e.ctx.Logger().Error("join left read failed", zap.Error(err))
			e.done = true

			break
		}
		if !ok {
			e.leftRd.Close()
			e.leftRd = nil

			continue
		}

		e.matchLeft(lt)
	}

	return produced > 0
}

// advancePartition loads the next partition's right side into the probe
// table and opens the left side for streaming. False when exhausted.
func (e *HashJoin) advancePartition() bool {
	for {
		e.part++
		if e.part >= joinPartitions {
			return false
		}

		if e.leftParts[e.part].empty() {
			continue
		}

		probe := make(map[uint64][]*table.Tuple)
		rd := newRunReader(e.ctx.Pool(), e.rightParts[e.part])
		for {
			t, ok, err := rd.Next()
			if err != nil {
				e.ctx.Logger().Error("join right read failed", zap.Error(err))
				rd.Close()

				return false
			}
			if !ok {
				break
			}

			h := hashKeys(t, e.rightKeys, probeSeed)
			probe[h] = append(probe[h], t)
		}
		rd.Close()

		e.probe = probe
		e.leftRd = newRunReader(e.ctx.Pool(), e.leftParts[e.part])

		return true
	}
}

// matchLeft queues every join result for one left row. Key comparison is by
// value; a NULL key matches nothing.
func (e *HashJoin) matchLeft(lt *table.Tuple) {
	h := hashKeys(lt, e.leftKeys, probeSeed)

	matched := false
	for _, rt := range e.probe[h] {
		if !e.keysMatch(lt, rt) {
			continue
		}

		e.pending = append(e.pending, mergeTuples(lt, rt))
		matched = true
	}

	if !matched && e.joinType == LeftJoin {
		e.pending = append(e.pending, e.padRight(lt))
	}
}

func (e *HashJoin) keysMatch(lt, rt *table.Tuple) bool {
	for i := range e.leftKeys {
		lv := e.leftKeys[i].Evaluate(lt)
		rv := e.rightKeys[i].Evaluate(rt)

		if lv.IsNull() || rv.IsNull() || lv.Compare(rv) != 0 {
			return false
		}
	}

	return true
}

func (e *HashJoin) padRight(lt *table.Tuple) *table.Tuple {
	rightSchema := e.right.OutputSchema()

	values := make([]table.Value, 0, e.schema.ColumnCount())
	values = append(values, lt.Values()...)
	for _, col := range rightSchema.Columns() {
		values = append(values, table.NewNull(col.Type))
	}

	return table.NewTuple(values)
}

func (e *HashJoin) releaseRuns() {
	if e.leftRd != nil {
		e.leftRd.Close()
		e.leftRd = nil
	}

	for i := range joinPartitions {
		e.leftParts[i].release(e.ctx.Pool())
		e.rightParts[i].release(e.ctx.Pool())
		e.leftParts[i] = run{}
		e.rightParts[i] = run{}
	}
}

func (e *HashJoin) OutputSchema() *table.Schema {
	return e.schema
}

func mergeTuples(left, right *table.Tuple) *table.Tuple {
	values := make([]table.Value, 0, left.ColumnCount()+right.ColumnCount())
	values = append(values, left.Values()...)
	values = append(values, right.Values()...)

	return table.NewTuple(values)
}
