package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LoadImage reads the textual image format from r: one instruction per
// line, tokens separated by runs of whitespace, first token the decimal
// opcode, remaining tokens operand literals. A line beginning with '#' is a
// comment. There is no embedded symbol table — names have already been
// lowered to absolute addresses by the program builder (spec.md §4.1, §6).
//
// Grounded on KTStephano/gvm's vm/parse.go (preprocessLine/parseInputLine),
// adapted from "mnemonic + escaped operand" to "decimal opcode + typed
// literal tokens".
func LoadImage(r io.Reader) (*Program, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	program := &Program{}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		tokens, err := tokenizeImageLine(line)
		if err != nil {
			return nil, &VMError{Kind: SyntaxError, Message: fmt.Sprintf("line %d: %s", lineNo, err)}
		}
		if len(tokens) == 0 {
			continue
		}

		opcodeValue, err := strconv.ParseInt(tokens[0], 10, 32)
		if err != nil {
			return nil, &VMError{Kind: SyntaxError, Message: fmt.Sprintf("line %d: invalid opcode %q", lineNo, tokens[0])}
		}
		opcode := Opcode(opcodeValue)
		if !opcode.Defined() {
			return nil, &VMError{Kind: SyntaxError, Message: fmt.Sprintf("line %d: unknown opcode %d", lineNo, opcodeValue)}
		}

		program.Instructions = append(program.Instructions, Instruction{
			Opcode:   opcode,
			Operands: tokens[1:],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &VMError{Kind: IoError, Message: err.Error()}
	}
	return program, nil
}

// tokenizeImageLine splits a line on whitespace, keeping a double-quoted
// token (a string literal operand) intact as one token.
func tokenizeImageLine(line string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			current.WriteByte(c)
			inQuotes = !inQuotes
		case inQuotes:
			current.WriteByte(c)
		case c == ' ' || c == '\t':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated string literal")
	}
	flush()
	return tokens, nil
}

// WriteImage serializes program back to the textual image format.
func WriteImage(w io.Writer, program *Program) error {
	buffered := bufio.NewWriter(w)
	for _, instr := range program.Instructions {
		if _, err := fmt.Fprintf(buffered, "%d", int32(instr.Opcode)); err != nil {
			return err
		}
		for _, operand := range instr.Operands {
			if _, err := fmt.Fprintf(buffered, " %s", operand); err != nil {
				return err
			}
		}
		if _, err := buffered.WriteString("\n"); err != nil {
			return err
		}
	}
	return buffered.Flush()
}

// operand token parsing helpers used by the typed opcode handlers.

func parseIntOperand(tok string) (int64, error) {
	return strconv.ParseInt(tok, 10, 64)
}

func parseFloatOperand(tok string) (float64, error) {
	return strconv.ParseFloat(tok, 64)
}

func parseStringOperand(tok string) (string, error) {
	if len(tok) < 2 || tok[0] != '"' || tok[len(tok)-1] != '"' {
		return "", fmt.Errorf("expected quoted string operand, got %q", tok)
	}
	unescaped := strings.ReplaceAll(tok[1:len(tok)-1], `\"`, `"`)
	unescaped = strings.ReplaceAll(unescaped, `\n`, "\n")
	return unescaped, nil
}
