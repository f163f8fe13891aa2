package engine

import (
	"context"
	"strings"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

// %(*objectname) é o commit desreferenciado; vazio em tags leves.
const tagRefFormat = "%(refname:short)%00%(objecttype)%00%(objectname)%00%(*objectname)%00%(taggername)%00%(taggeremail)%00%(taggerdate:iso-strict)%00%(contents:subject)"

func (e *Engine) Tags(ctx context.Context) ([]model.Tag, error) {
	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpRead,
		"for-each-ref", "--sort=-creatordate", "--format="+tagRefFormat, "refs/tags")
	if err != nil {
		return nil, err
	}
	return ParseTagRefs(result.Text()), nil
}

// ParseTagRefs distingue tags anotadas pelo objecttype "tag". Nelas o
// TargetSHA é o commit apontado, não o objeto tag.
func ParseTagRefs(raw string) []model.Tag {
	out := make([]model.Tag, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\x00")
		if len(fields) < 8 {
			continue
		}
		name := strings.TrimSpace(fields[0])
		if name == "" {
			continue
		}

		tag := model.Tag{
			Name:      name,
			TargetSHA: strings.TrimSpace(fields[2]),
		}
		if strings.TrimSpace(fields[1]) == "tag" {
			tag.IsAnnotated = true
			tag.ObjectSHA = strings.TrimSpace(fields[2])
			if deref := strings.TrimSpace(fields[3]); deref != "" {
				tag.TargetSHA = deref
			}
			tag.Message = strings.TrimSpace(fields[7])
			if taggerName := strings.TrimSpace(fields[4]); taggerName != "" {
				date, _ := ParseGitDate(fields[6])
				tag.Tagger = &model.Signature{
					Name:  taggerName,
					Email: strings.Trim(strings.TrimSpace(fields[5]), "<>"),
					Date:  date,
				}
			}
		}
		out = append(out, tag)
	}
	return out
}

// CreateTag cria uma tag leve, ou anotada quando message não é vazia.
func (e *Engine) CreateTag(ctx context.Context, name string, target string, message string) error {
	name = strings.TrimSpace(name)
	if err := validateRefName(name, giterr.KindTagCreateFailed); err != nil {
		return err
	}
	args := []string{"tag"}
	stdin := ""
	if strings.TrimSpace(message) != "" {
		args = append(args, "-a", "-F", "-")
		stdin = message
	}
	args = append(args, name)
	if target = strings.TrimSpace(target); target != "" {
		args = append(args, target)
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpTagCreate, action: "tag_create", stdin: stdin, args: args})
	return err
}

func (e *Engine) DeleteTag(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if err := validateRefName(name, giterr.KindTagDeleteFailed); err != nil {
		return err
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpTagDelete, action: "tag_delete", args: []string{"tag", "-d", name}})
	return err
}
