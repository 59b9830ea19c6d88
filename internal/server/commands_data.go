package server

import (
	"errors"
	"time"

	"github.com/rdnode/rdnode/internal/resp"
	"github.com/rdnode/rdnode/internal/store"
)

func (s *Server) cmdSet(args [][]byte) (resp.Value, error) {
	if len(args) < 2 {
		return resp.Value{}, arityErr("SET")
	}
	opts := store.SetOptions{}
	if len(args) > 2 {
		if len(args) != 4 {
			return resp.Value{}, arityErr("SET")
		}
		n, err := intArg(args[3])
		if err != nil {
			return resp.Value{}, err
		}
		var exp time.Time
		switch string(upper(args[2])) {
		case "EX":
			exp = time.Now().Add(time.Duration(n) * time.Second)
		case "PX":
			exp = time.Now().Add(time.Duration(n) * time.Millisecond)
		default:
			return resp.Value{}, errors.New("ERR syntax error")
		}
		opts.ExpireAt = &exp
	}
	if err := s.engine.Set(string(args[0]), args[1], opts); err != nil {
		return resp.Value{}, err
	}
	return resp.NewSimpleString("OK"), nil
}

func upper(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

func (s *Server) cmdGet(args [][]byte) (resp.Value, error) {
	if len(args) != 1 {
		return resp.Value{}, arityErr("GET")
	}
	v, ok, err := s.engine.Get(string(args[0]))
	if err != nil {
		return resp.Value{}, err
	}
	return bulkOrNull(v, ok), nil
}

func (s *Server) cmdAppend(args [][]byte) (resp.Value, error) {
	if len(args) != 2 {
		return resp.Value{}, arityErr("APPEND")
	}
	n, err := s.engine.Append(string(args[0]), args[1])
	if err != nil {
		return resp.Value{}, err
	}
	return resp.NewInteger(int64(n)), nil
}

func (s *Server) cmdStrlen(args [][]byte) (resp.Value, error) {
	if len(args) != 1 {
		return resp.Value{}, arityErr("STRLEN")
	}
	n, err := s.engine.Strlen(string(args[0]))
	if err != nil {
		return resp.Value{}, err
	}
	return resp.NewInteger(int64(n)), nil
}

func (s *Server) cmdGetRange(args [][]byte) (resp.Value, error) {
	if len(args) != 3 {
		return resp.Value{}, arityErr("GETRANGE")
	}
	start, err := intArg(args[1])
	if err != nil {
		return resp.Value{}, err
	}
	end, err := intArg(args[2])
	if err != nil {
		return resp.Value{}, err
	}
	v, err := s.engine.GetRange(string(args[0]), start, end)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.NewBulkString(v), nil
}

func (s *Server) cmdSetRange(args [][]byte) (resp.Value, error) {
	if len(args) != 3 {
		return resp.Value{}, arityErr("SETRANGE")
	}
	offset, err := intArg(args[1])
	if err != nil {
		return resp.Value{}, err
	}
	n, err := s.engine.SetRange(string(args[0]), offset, args[2])
	if err != nil {
		return resp.Value{}, err
	}
	return resp.NewInteger(int64(n)), nil
}

func (s *Server) cmdLPush(args [][]byte) (resp.Value, error) {
	if len(args) < 2 {
		return resp.Value{}, arityErr("LPUSH")
	}
	n, err := s.engine.LPush(string(args[0]), args[1:]...)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.NewInteger(int64(n)), nil
}

func (s *Server) cmdLRange(args [][]byte) (resp.Value, error) {
	if len(args) != 3 {
		return resp.Value{}, arityErr("LRANGE")
	}
	start, err := intArg(args[1])
	if err != nil {
		return resp.Value{}, err
	}
	stop, err := intArg(args[2])
	if err != nil {
		return resp.Value{}, err
	}
	items, err := s.engine.LRange(string(args[0]), start, stop)
	if err != nil {
		return resp.Value{}, err
	}
	return bulkArray(items), nil
}

func (s *Server) cmdLLen(args [][]byte) (resp.Value, error) {
	if len(args) != 1 {
		return resp.Value{}, arityErr("LLEN")
	}
	n, err := s.engine.LLen(string(args[0]))
	if err != nil {
		return resp.Value{}, err
	}
	return resp.NewInteger(int64(n)), nil
}

func (s *Server) cmdLPop(args [][]byte) (resp.Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return resp.Value{}, arityErr("LPOP")
	}
	count := 1
	withCount := false
	if len(args) == 2 {
		n, err := intArg(args[1])
		if err != nil {
			return resp.Value{}, err
		}
		count = n
		withCount = true
	}
	popped, ok, err := s.engine.LPop(string(args[0]), count)
	if err != nil {
		return resp.Value{}, err
	}
	if !ok {
		if withCount {
			return resp.NullArray(), nil
		}
		return resp.NullBulkString(), nil
	}
	if withCount {
		return bulkArray(popped), nil
	}
	return resp.NewBulkString(popped[0]), nil
}

func (s *Server) cmdLIndex(args [][]byte) (resp.Value, error) {
	if len(args) != 2 {
		return resp.Value{}, arityErr("LINDEX")
	}
	i, err := intArg(args[1])
	if err != nil {
		return resp.Value{}, err
	}
	v, ok, err := s.engine.LIndex(string(args[0]), i)
	if err != nil {
		return resp.Value{}, err
	}
	return bulkOrNull(v, ok), nil
}

func (s *Server) cmdLSet(args [][]byte) (resp.Value, error) {
	if len(args) != 3 {
		return resp.Value{}, arityErr("LSET")
	}
	i, err := intArg(args[1])
	if err != nil {
		return resp.Value{}, err
	}
	if err := s.engine.LSet(string(args[0]), i, args[2]); err != nil {
		return resp.Value{}, err
	}
	return resp.NewSimpleString("OK"), nil
}

func (s *Server) cmdLInsert(args [][]byte) (resp.Value, error) {
	if len(args) != 4 {
		return resp.Value{}, arityErr("LINSERT")
	}
	var where store.ListInsertWhere
	switch string(upper(args[1])) {
	case "BEFORE":
		where = store.Before
	case "AFTER":
		where = store.After
	default:
		return resp.Value{}, errors.New("ERR syntax error")
	}
	n, err := s.engine.LInsert(string(args[0]), where, args[2], args[3])
	if err != nil {
		return resp.Value{}, err
	}
	return resp.NewInteger(int64(n)), nil
}

func (s *Server) cmdSAdd(args [][]byte) (resp.Value, error) {
	if len(args) < 2 {
		return resp.Value{}, arityErr("SADD")
	}
	n, err := s.engine.SAdd(string(args[0]), args[1:]...)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.NewInteger(int64(n)), nil
}

func (s *Server) cmdSMembers(args [][]byte) (resp.Value, error) {
	if len(args) != 1 {
		return resp.Value{}, arityErr("SMEMBERS")
	}
	items, err := s.engine.SMembers(string(args[0]))
	if err != nil {
		return resp.Value{}, err
	}
	return bulkArray(items), nil
}

func (s *Server) cmdSIsMember(args [][]byte) (resp.Value, error) {
	if len(args) != 2 {
		return resp.Value{}, arityErr("SISMEMBER")
	}
	ok, err := s.engine.SIsMember(string(args[0]), args[1])
	if err != nil {
		return resp.Value{}, err
	}
	if ok {
		return resp.NewInteger(1), nil
	}
	return resp.NewInteger(0), nil
}

func (s *Server) cmdSCard(args [][]byte) (resp.Value, error) {
	if len(args) != 1 {
		return resp.Value{}, arityErr("SCARD")
	}
	n, err := s.engine.SCard(string(args[0]))
	if err != nil {
		return resp.Value{}, err
	}
	return resp.NewInteger(int64(n)), nil
}

func (s *Server) cmdSSetOp(args [][]byte, op func(keys ...string) ([][]byte, error)) (resp.Value, error) {
	if len(args) == 0 {
		return resp.Value{}, errors.New("ERR wrong number of arguments")
	}
	keys := make([]string, len(args))
	for i, a := range args {
		keys[i] = string(a)
	}
	items, err := op(keys...)
	if err != nil {
		return resp.Value{}, err
	}
	return bulkArray(items), nil
}

func (s *Server) cmdDel(args [][]byte) (resp.Value, error) {
	if len(args) == 0 {
		return resp.Value{}, arityErr("DEL")
	}
	keys := make([]string, len(args))
	for i, a := range args {
		keys[i] = string(a)
	}
	return resp.NewInteger(int64(s.engine.Del(keys...))), nil
}

func (s *Server) cmdExists(args [][]byte) (resp.Value, error) {
	if len(args) == 0 {
		return resp.Value{}, arityErr("EXISTS")
	}
	keys := make([]string, len(args))
	for i, a := range args {
		keys[i] = string(a)
	}
	return resp.NewInteger(int64(s.engine.Exists(keys...))), nil
}

func (s *Server) cmdType(args [][]byte) (resp.Value, error) {
	if len(args) != 1 {
		return resp.Value{}, arityErr("TYPE")
	}
	return resp.NewSimpleString(s.engine.TypeOf(string(args[0]))), nil
}
