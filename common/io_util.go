package common

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseInput 解析输入,"-"表示标准输入stdin,否则打开input指定的文件,stdin为nil时使用os.Stdin
func ParseInput(input string, stdin io.Reader) (io.ReadCloser, error) {
	if input == "" {
		return nil, fmt.Errorf("Invalid input:%q", input)
	}
	if input == "-" {
		Debugf("Read data from stdin")
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.NopCloser(stdin), nil
	}
	Debugf("Read data from %s", input)
	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("Invalid input:%s,err:%w", input, err)
	}
	return f, nil
}

// LF 换行符
const LF = '\n'

// ProcessLineFunc 行处理函数,返回true时停止读取
type ProcessLineFunc func(data string, lineNum int, readErr error) (stop bool)

// ProcessLines 按行从rd中读取数据,交由processFunc进行处理,空行会被跳过
func ProcessLines(rd io.Reader, processFunc ProcessLineFunc) {
	scanner := bufio.NewReaderSize(rd, 4*1024)
	var readErr error
	var lineNum = 0
	var data string
	for readErr == nil {
		data, readErr = scanner.ReadString(LF)
		lineNum++

		data = strings.TrimSpace(data)
		if readErr != nil && readErr != io.EOF {
			processFunc(data, lineNum, readErr)
			break
		} else if readErr != nil && readErr == io.EOF {
			if len(data) > 0 {
				processFunc(data, lineNum, nil)
			}
			break
		} else {
			if len(data) > 0 {
				if processFunc(data, lineNum, nil) {
					break
				}
			}
		}
	}
}

// ProcessFileLines 按行处理文件fileName,"-"表示按行处理stdin
func ProcessFileLines(fileName string, stdin io.Reader, processFunc ProcessLineFunc) error {
	rd, err := ParseInput(fileName, stdin)
	if err != nil {
		return err
	}
	defer rd.Close()
	ProcessLines(rd, processFunc)
	return nil
}
