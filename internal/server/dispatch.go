package server

import (
	"fmt"

	"github.com/rdnode/rdnode/internal/resp"
)

// execData runs one of the §4.2 storage-engine commands against s.engine
// and builds its RESP reply. Called only after routing has confirmed this
// node should execute the command locally.
func (s *Server) execData(cmd command) (resp.Value, error) {
	switch cmd.name {
	case "SET":
		return s.cmdSet(cmd.args)
	case "GET":
		return s.cmdGet(cmd.args)
	case "APPEND":
		return s.cmdAppend(cmd.args)
	case "STRLEN":
		return s.cmdStrlen(cmd.args)
	case "GETRANGE":
		return s.cmdGetRange(cmd.args)
	case "SETRANGE":
		return s.cmdSetRange(cmd.args)
	case "LPUSH":
		return s.cmdLPush(cmd.args)
	case "LRANGE":
		return s.cmdLRange(cmd.args)
	case "LLEN":
		return s.cmdLLen(cmd.args)
	case "LPOP":
		return s.cmdLPop(cmd.args)
	case "LINDEX":
		return s.cmdLIndex(cmd.args)
	case "LSET":
		return s.cmdLSet(cmd.args)
	case "LINSERT":
		return s.cmdLInsert(cmd.args)
	case "SADD":
		return s.cmdSAdd(cmd.args)
	case "SMEMBERS":
		return s.cmdSMembers(cmd.args)
	case "SISMEMBER":
		return s.cmdSIsMember(cmd.args)
	case "SCARD":
		return s.cmdSCard(cmd.args)
	case "SINTER":
		return s.cmdSSetOp(cmd.args, s.engine.SInter)
	case "SUNION":
		return s.cmdSSetOp(cmd.args, s.engine.SUnion)
	case "SDIFF":
		return s.cmdSSetOp(cmd.args, s.engine.SDiff)
	case "DEL":
		return s.cmdDel(cmd.args)
	case "EXISTS":
		return s.cmdExists(cmd.args)
	case "TYPE":
		return s.cmdType(cmd.args)
	default:
		return resp.Value{}, unknownCommand(cmd.name)
	}
}

func unknownCommand(name string) error {
	return fmt.Errorf("ERR unknown command '%s'", name)
}

func bulkOrNull(b []byte, ok bool) resp.Value {
	if !ok {
		return resp.NullBulkString()
	}
	return resp.NewBulkString(b)
}

func bulkArray(items [][]byte) resp.Value {
	elems := make([]resp.Value, len(items))
	for i, it := range items {
		elems[i] = resp.NewBulkString(it)
	}
	return resp.NewArray(elems)
}
