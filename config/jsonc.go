package config

// trim strips out the comments and the trailing commas of a jsonc document.
// The result keeps the length and the line breaks of the input, so parse errors
// report the same offsets.
func trim(src, dst []byte) []byte {
	dst = dst[:0]
	for i := 0; i < len(src); i++ {
		c := src[i]

		// comments
		if c == '/' && i < len(src)-1 {
			switch src[i+1] {
			case '/':
				dst = append(dst, ' ', ' ')
				for i += 2; i < len(src); i++ {
					if src[i] == '\n' {
						dst = append(dst, '\n')
						break
					}
					dst = append(dst, blank(src[i]))
				}
				continue

			case '*':
				dst = append(dst, ' ', ' ')
				for i += 2; i < len(src)-1; i++ {
					if src[i] == '*' && src[i+1] == '/' {
						dst = append(dst, ' ', ' ')
						i++
						break
					}
					dst = append(dst, blank(src[i]))
				}
				continue
			}
		}

		dst = append(dst, c)

		// strings are copied as they are
		if c == '"' {
			for i = i + 1; i < len(src); i++ {
				dst = append(dst, src[i])
				if src[i] == '"' && !escaped(src, i) {
					break
				}
			}
			continue
		}

		// trailing commas
		if c == '}' || c == ']' {
			for j := len(dst) - 2; j >= 0; j-- {
				if dst[j] <= ' ' {
					continue
				}
				if dst[j] == ',' {
					dst[j] = ' '
				}
				break
			}
		}
	}
	return dst
}

// blank keep the layout characters, the others become spaces
func blank(c byte) byte {
	if c == '\n' || c == '\t' || c == '\r' {
		return c
	}
	return ' '
}

// escaped the quote at i is preceded by an odd number of backslashes
func escaped(src []byte, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && src[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}
