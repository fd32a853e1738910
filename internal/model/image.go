package model

import (
	"strings"

	"github.com/distribution/reference"

	"podsync/internal/engine"
)

// Image 镜像实体
type Image struct {
	base[engine.ImageData]
}

func newImage(id string, data engine.ImageData) *Image {
	return &Image{base: newBase(id, data)}
}

// RepoTags 镜像标签，悬垂镜像的 <none>:<none> 会被过滤
func (i *Image) RepoTags() []string {
	var tags []string
	for _, t := range i.Data().RepoTags {
		if t != "" && t != "<none>:<none>" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Size 镜像大小（字节）
func (i *Image) Size() int64 {
	return i.Data().Size
}

// Dangling 没有任何标签
func (i *Image) Dangling() bool {
	return len(i.RepoTags()) == 0
}

// Containers 使用该镜像的容器数量
func (i *Image) Containers() int {
	return i.Data().Containers
}

// Matches 判断镜像是否对应给定引用，支持完整 ID、短 ID 和各种形式的镜像名
func (i *Image) Matches(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}

	id := strings.TrimPrefix(i.ID(), "sha256:")
	short := strings.TrimPrefix(ref, "sha256:")
	if len(short) >= 12 && strings.HasPrefix(id, short) {
		return true
	}

	want, ok := normalizeReference(ref)
	if !ok {
		return false
	}
	for _, tag := range i.RepoTags() {
		if have, ok := normalizeReference(tag); ok && have == want {
			return true
		}
	}
	return false
}

// normalizeReference alpine -> docker.io/library/alpine:latest
func normalizeReference(ref string) (string, bool) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", false
	}
	return reference.TagNameOnly(named).String(), true
}

// ImageList 镜像列表
type ImageList struct {
	*List[engine.ImageData, *Image]
}

// NewImageList 创建镜像列表
func NewImageList(source engine.Source[engine.ImageData], opts ...Option) *ImageList {
	return &ImageList{List: newList(engine.KindImage, source, newImage, opts...)}
}

// FindByReference 按引用查找本地镜像
func (l *ImageList) FindByReference(ref string) (*Image, bool) {
	for _, img := range l.Items() {
		if img.Matches(ref) {
			return img, true
		}
	}
	return nil, false
}

// TotalSize 所有镜像大小之和
func (l *ImageList) TotalSize() int64 {
	var total int64
	for _, img := range l.Items() {
		total += img.Size()
	}
	return total
}

// NumUnused 未被任何容器使用的镜像数量
func (l *ImageList) NumUnused() int {
	n := 0
	for _, img := range l.Items() {
		if img.Containers() == 0 {
			n++
		}
	}
	return n
}

// UnusedSize 未使用镜像的总大小
func (l *ImageList) UnusedSize() int64 {
	var total int64
	for _, img := range l.Items() {
		if img.Containers() == 0 {
			total += img.Size()
		}
	}
	return total
}
