package mcpserver

// ExecutionStringContract describes the execution string grammar that
// LLM consumers should follow when building launch commands.
const ExecutionStringContract = `# comicshelf Execution String Format

An execution string is expanded into the argument list of a launched
program. It is never passed through a shell.

## Tokens

The string is split on unescaped whitespace. Each resulting token is either
a literal or a single substitution in braces:

| Token             | Expands to                                            |
|-------------------|-------------------------------------------------------|
| ` + "`{first}`" + `         | path of the first file                                |
| ` + "`{all}`" + `           | one argument per file path                            |
| ` + "`{all:SEP}`" + `       | every file path joined by SEP, as one argument        |
| ` + "`{folder}`" + `        | the folder holding the comic                          |
| ` + "`{firstname}`" + `     | base name of the first file                           |
| ` + "`{allname}`" + `       | one argument per file base name                       |
| ` + "`{allname:SEP}`" + `   | every base name joined by SEP, as one argument        |
| ` + "`{title}`" + `         | display title                                         |
| ` + "`{author}`" + `        | display author                                        |
| ` + "`{category}`" + `      | display category                                      |

## Rules

1. A substitution must be the whole token: ` + "`pre{first}`" + ` is rejected.
2. Braces cannot nest, and a literal brace must be escaped.
3. A backslash escapes only ` + "`\\`" + `, ` + "`{`" + `, ` + "`}`" + ` and a space.
4. Substituted values are never split again, so a file name with spaces
   stays one argument.
5. An empty execution string expands to the first file path alone.

## Example

` + "```" + `
--fullscreen --title {title} {all}
` + "```" + `

For a comic with files ` + "`/lib/A/B/1.png`" + ` and ` + "`/lib/A/B/2.png`" + ` this yields
` + "`[\"--fullscreen\", \"--title\", \"B\", \"/lib/A/B/1.png\", \"/lib/A/B/2.png\"]`" + `.
`
