package credential

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

type lookupFunc func(ctx context.Context, database string) (*tenant.Tenant, error)

func (f lookupFunc) FindByStoredInDatabase(ctx context.Context, database string) (*tenant.Tenant, error) {
	return f(ctx, database)
}

func TestDeriver(t *testing.T) {
	Convey("凭证派生", t, func() {
		ctx := context.Background()
		first := &tenant.Tenant{ID: 7, UUID: "ab12", TheKey: "k1", StoredInDatabase: "tenants0"}
		second := &tenant.Tenant{ID: 9, UUID: "cd34", TheKey: "k2", StoredInDatabase: "tenants0"}

		Convey("格式为 key-uuid-id-salt", func() {
			d := NewDeriver("", nil)
			So(d.Derive(first), ShouldEqual, "k1-ab12-7-"+DefaultSalt)
			So(NewDeriver("pepper", nil).Derive(first), ShouldEqual, "k1-ab12-7-pepper")
		})

		Convey("同一租户多次派生结果一致", func() {
			d := NewDeriver("", nil)
			So(d.Derive(first), ShouldEqual, d.Derive(first))
		})

		Convey("the_key、uuid、id 任一变化都会改变凭证", func() {
			d := NewDeriver("", nil)
			base := d.Derive(first)

			key := *first
			key.TheKey = "k1x"
			So(d.Derive(&key), ShouldNotEqual, base)

			uuid := *first
			uuid.UUID = "ab13"
			So(d.Derive(&uuid), ShouldNotEqual, base)

			id := *first
			id.ID = 8
			So(d.Derive(&id), ShouldNotEqual, base)
		})

		Convey("共享库已有租户时使用第一个租户的凭证", func() {
			var asked string
			d := NewDeriver("", lookupFunc(func(_ context.Context, db string) (*tenant.Tenant, error) {
				asked = db
				return first, nil
			}))
			got, err := d.RecoverOrDerive(ctx, "tenants0", second)
			So(err, ShouldBeNil)
			So(asked, ShouldEqual, "tenants0")
			So(got, ShouldEqual, d.Derive(first))
		})

		Convey("共享库没有租户时由当前租户派生", func() {
			d := NewDeriver("", lookupFunc(func(context.Context, string) (*tenant.Tenant, error) {
				return nil, nil
			}))
			got, err := d.RecoverOrDerive(ctx, "tenants1", second)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "k2-cd34-9-"+DefaultSalt)
		})

		Convey("查询失败时返回错误", func() {
			boom := errors.New("system database unavailable")
			d := NewDeriver("", lookupFunc(func(context.Context, string) (*tenant.Tenant, error) {
				return nil, boom
			}))
			_, err := d.RecoverOrDerive(ctx, "tenants0", second)
			So(errors.Is(err, boom), ShouldBeTrue)
		})
	})
}

func TestKeyedGenerator(t *testing.T) {
	Convey("schema 模式密码生成", t, func() {
		Convey("空密钥被拒绝", func() {
			_, err := NewKeyedGenerator("")
			So(err, ShouldEqual, ErrEmptyAppKey)
		})

		Convey("超长密钥被拒绝", func() {
			_, err := NewKeyedGenerator(strings.Repeat("x", 65))
			So(err, ShouldNotBeNil)
		})

		Convey("结果稳定且区分租户和密钥", func() {
			g, err := NewKeyedGenerator("base64:app-key")
			So(err, ShouldBeNil)

			a1, _ := g.Generate(&tenant.Tenant{UUID: "u1"})
			a2, _ := g.Generate(&tenant.Tenant{UUID: "u1"})
			b, _ := g.Generate(&tenant.Tenant{UUID: "u2"})
			So(a1, ShouldHaveLength, 64)
			So(a1, ShouldEqual, a2)
			So(a1, ShouldNotEqual, b)

			other, _ := NewKeyedGenerator("another-key")
			c, _ := other.Generate(&tenant.Tenant{UUID: "u1"})
			So(c, ShouldNotEqual, a1)
		})

		Convey("String 不泄露密钥", func() {
			g, _ := NewKeyedGenerator("secret")
			So(g.String(), ShouldNotContainSubstring, "secret")
		})
	})
}
